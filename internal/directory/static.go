// Package directory — справочник учеников и категорий (внешний сервис SIAKAD).
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

// Static — справочник в памяти. Для локального запуска и тестов.
type Static struct {
	mu         sync.RWMutex
	students   map[uuid.UUID]models.Student
	categories map[uuid.UUID]models.Category
}

func NewStatic() *Static {
	return &Static{
		students:   map[uuid.UUID]models.Student{},
		categories: map[uuid.UUID]models.Category{},
	}
}

// Demo — справочник с одним учеником и одной категорией для локального запуска.
func Demo() (*Static, uuid.UUID, uuid.UUID) {
	d := NewStatic()
	sid := uuid.MustParse("6f1d2c3a-0000-4000-8000-000000000001")
	cid := uuid.MustParse("6f1d2c3a-0000-4000-8000-0000000000c1")
	d.AddStudent(models.Student{ID: sid.String(), NISN: "0012345678", Name: "Ahmad Fauzi", ClassName: "10 IPA 1"})
	d.AddCategory(models.Category{ID: cid.String(), Code: "OLIMPIADE_MTK", Name: "Olimpiade Matematika", Type: models.CategoryAcademic, BasePoints: 50})
	return d, sid, cid
}

func (d *Static) AddStudent(s models.Student) uuid.UUID {
	id := uuid.MustParse(s.ID)
	d.mu.Lock()
	d.students[id] = s
	d.mu.Unlock()
	return id
}

func (d *Static) AddCategory(c models.Category) uuid.UUID {
	id := uuid.MustParse(c.ID)
	d.mu.Lock()
	d.categories[id] = c
	d.mu.Unlock()
	return id
}

func (d *Static) Student(_ context.Context, id uuid.UUID) (*models.Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.students[id]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", id, workflow.ErrUnknownReference)
	}
	return &s, nil
}

func (d *Static) Category(_ context.Context, id uuid.UUID) (*models.Category, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.categories[id]
	if !ok {
		return nil, fmt.Errorf("category %s: %w", id, workflow.ErrUnknownReference)
	}
	return &c, nil
}
