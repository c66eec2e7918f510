package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

// wire-формат ответов справочника
type studentDTO struct {
	ID        string `json:"id"`
	NISN      string `json:"nisn"`
	Name      string `json:"name"`
	ClassName string `json:"className"`
}

type categoryDTO struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	BasePoints int    `json:"basePoints"`
}

func (d studentDTO) model() *models.Student {
	return &models.Student{ID: d.ID, NISN: d.NISN, Name: d.Name, ClassName: d.ClassName}
}

func (d categoryDTO) model() *models.Category {
	return &models.Category{ID: d.ID, Code: d.Code, Name: d.Name, Type: models.CategoryType(d.Type).Normalize(), BasePoints: d.BasePoints}
}

// Client — HTTP-клиент справочника: GET {base}/students/{id}, GET {base}/categories/{id}.
// Ответ 404 означает, что записи нет.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, workflow.ErrUnknownReference)
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) Student(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var dto studentDTO
	if err := c.do(ctx, "/students/"+id.String(), &dto); err != nil {
		return nil, err
	}
	if dto.ID == "" {
		dto.ID = id.String()
	}
	return dto.model(), nil
}

func (c *Client) Category(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var dto categoryDTO
	if err := c.do(ctx, "/categories/"+id.String(), &dto); err != nil {
		return nil, err
	}
	if dto.ID == "" {
		dto.ID = id.String()
	}
	return dto.model(), nil
}
