// Package policy содержит правила жизненного цикла клиента.
package policy

import "github.com/mmeshcher/nexus-crm/internal/model"

// IsDueToday сообщает, наступил ли срок клиента сегодня.
//
// Клиент считается "к уведомлению", если его дата совпадает с сегодняшней
// и статус отличен от Active: уже активный клиент не беспокоится повторно.
// Просроченность по прошедшим датам здесь намеренно не вычисляется.
func IsDueToday(c model.Client, today string) bool {
	return c.Date == today && c.Status != model.StatusActive
}
