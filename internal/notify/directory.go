package notify

import (
	"fmt"

	"github.com/pactops/fieldops/internal/models"
	"gorm.io/gorm"
)

// Directory implements RoleDirectory and TeamDirectory over the
// profiles and project_members tables.
type Directory struct {
	db *gorm.DB
}

// NewDirectory creates a gorm-backed Directory.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) UsersWithRole(role string) ([]string, error) {
	var ids []string
	if err := d.db.Model(&models.Profile{}).
		Where("role = ? AND active = ?", role, true).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("notify: users with role %s: %w", role, err)
	}
	return ids, nil
}

func (d *Directory) UsersWithAnyRole(roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var ids []string
	if err := d.db.Model(&models.Profile{}).
		Where("role IN ? AND active = ?", roles, true).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("notify: users with roles %v: %w", roles, err)
	}
	return ids, nil
}

func (d *Directory) ProjectMembers(projectID string) ([]string, error) {
	var ids []string
	if err := d.db.Model(&models.ProjectMember{}).
		Where("project_id = ?", projectID).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("notify: members of %s: %w", projectID, err)
	}
	return ids, nil
}

func (d *Directory) ProjectMembersWithRole(projectID, role string) ([]string, error) {
	var ids []string
	if err := d.db.Model(&models.ProjectMember{}).
		Where("project_id = ? AND role = ?", projectID, role).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("notify: members of %s with role %s: %w", projectID, role, err)
	}
	return ids, nil
}
