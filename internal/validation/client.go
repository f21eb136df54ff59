// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"
	"strings"
	"time"

	"github.com/mmeshcher/nexus-crm/internal/model"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// ValidateClientForm проверяет данные формы клиента и возвращает ошибки
// по полям. Пустая map означает, что запись пригодна для сохранения.
func ValidateClientForm(form model.ClientForm) map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(form.Name) == "" {
		errs["name"] = "name is required"
	}
	if strings.TrimSpace(form.Phone) == "" {
		errs["phone"] = "phone is required"
	}
	if strings.TrimSpace(form.Email) == "" {
		errs["email"] = "email is required"
	} else if !emailPattern.MatchString(form.Email) {
		errs["email"] = "invalid email format"
	}
	if form.Value != nil && *form.Value < 0 {
		errs["value"] = "value must be zero or positive"
	}
	if form.Date != "" {
		if _, err := time.Parse("2006-01-02", form.Date); err != nil {
			errs["date"] = "date must be YYYY-MM-DD"
		}
	}
	if form.Status != "" && !model.IsValidStatus(form.Status) {
		errs["status"] = "unknown status"
	}

	return errs
}

// ValidateClientPatch проверяет только заполненные поля формы при
// частичном обновлении: незаполненные поля сохраняют прежние значения
// и потому не проверяются на обязательность.
func ValidateClientPatch(form model.ClientForm) map[string]string {
	errs := make(map[string]string)

	if form.Email != "" && !emailPattern.MatchString(form.Email) {
		errs["email"] = "invalid email format"
	}
	if form.Value != nil && *form.Value < 0 {
		errs["value"] = "value must be zero or positive"
	}
	if form.Date != "" {
		if _, err := time.Parse("2006-01-02", form.Date); err != nil {
			errs["date"] = "date must be YYYY-MM-DD"
		}
	}
	if form.Status != "" && !model.IsValidStatus(form.Status) {
		errs["status"] = "unknown status"
	}

	return errs
}

// ValidateCategory проверяет имя и цвет новой категории.
func ValidateCategory(name, color string) map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(name) == "" {
		errs["name"] = "name is required"
	}
	if !model.IsValidCategoryColor(color) {
		errs["color"] = "unknown color"
	}

	return errs
}
