package templates

import "github.com/welldanyogia/webrana-crm-mail/internal/models"

// Starters returns the templates seeded for a new company
func Starters(companyID uint) []models.Template {
	return []models.Template{
		{
			CompanyID: companyID,
			Name:      "Welcome Email",
			Subject:   "Welcome to {company_name}!",
			BodyHTML:  "<p>Hi {customer_name},</p><p>Welcome to {company_name}! We are glad to have you with us.</p><p>Best regards,<br>{user_name}</p>",
			BodyText:  "Hi {customer_name},\n\nWelcome to {company_name}! We are glad to have you with us.\n\nBest regards,\n{user_name}",
			Category:  models.TemplateCustomer,
		},
		{
			CompanyID: companyID,
			Name:      "Follow Up",
			Subject:   "Following up on {deal_title}",
			BodyHTML:  "<p>Hi {lead_name},</p><p>I wanted to follow up on {deal_title}. Let me know if you have any questions.</p><p>Best regards,<br>{user_name}</p>",
			BodyText:  "Hi {lead_name},\n\nI wanted to follow up on {deal_title}. Let me know if you have any questions.\n\nBest regards,\n{user_name}",
			Category:  models.TemplateFollowUp,
		},
		{
			CompanyID: companyID,
			Name:      "Thank You",
			Subject:   "Thank you for your order {order_number}",
			BodyHTML:  "<p>Hi {customer_name},</p><p>Thank you for your order {order_number}. We appreciate your business.</p><p>Best regards,<br>{user_name}<br>{company_name}</p>",
			BodyText:  "Hi {customer_name},\n\nThank you for your order {order_number}. We appreciate your business.\n\nBest regards,\n{user_name}\n{company_name}",
			Category:  models.TemplateCustomer,
		},
	}
}
