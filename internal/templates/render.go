// Package templates substitutes {variable} placeholders into email templates.
package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
)

// Variables a template may reference
const (
	VarCustomerName = "customer_name"
	VarCompanyName  = "company_name"
	VarUserName     = "user_name"
	VarLeadName     = "lead_name"
	VarDealTitle    = "deal_title"
	VarOrderNumber  = "order_number"
)

// AllowedVariables is the closed set of placeholder names
var AllowedVariables = []string{
	VarCustomerName,
	VarCompanyName,
	VarUserName,
	VarLeadName,
	VarDealTitle,
	VarOrderNumber,
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Rendered is a template after substitution
type Rendered struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// Render substitutes vars into every part of tpl. Placeholders without a value
// in vars are left as written.
func Render(tpl *models.Template, vars map[string]string) Rendered {
	return Rendered{
		Subject:  Substitute(tpl.Subject, vars),
		BodyHTML: Substitute(tpl.BodyHTML, vars),
		BodyText: Substitute(tpl.BodyText, vars),
	}
}

// Substitute replaces each {name} in s whose name is a key of vars
func Substitute(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(s, "{") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Placeholders lists the distinct placeholder names used across parts, sorted
func Placeholders(parts ...string) []string {
	seen := map[string]struct{}{}
	for _, p := range parts {
		for _, m := range placeholder.FindAllStringSubmatch(p, -1) {
			seen[m[1]] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// VariableError lists the placeholders outside the allow-list
type VariableError struct {
	Names []string
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("%s: %s", apperrors.ErrInvalidTemplateVariables, strings.Join(e.Names, ", "))
}

func (e *VariableError) Unwrap() error {
	return apperrors.ErrInvalidTemplateVariables
}

// Validate rejects templates referencing variables outside AllowedVariables
func Validate(subject, bodyHTML, bodyText string) error {
	var bad []string
	for _, name := range Placeholders(subject, bodyHTML, bodyText) {
		if !IsAllowed(name) {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		return &VariableError{Names: bad}
	}
	return nil
}

// IsAllowed reports whether name is an allow-listed variable
func IsAllowed(name string) bool {
	for _, v := range AllowedVariables {
		if v == name {
			return true
		}
	}
	return false
}

// DefaultContext builds the send-time context. Values this service cannot
// resolve are blank.
func DefaultContext(companyName, userName string) map[string]string {
	ctx := make(map[string]string, len(AllowedVariables))
	for _, v := range AllowedVariables {
		ctx[v] = ""
	}
	ctx[VarCompanyName] = companyName
	ctx[VarUserName] = userName
	return ctx
}

// WithSample overlays allow-listed entries of sample onto base and returns a new map
func WithSample(base, sample map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(sample))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range sample {
		if IsAllowed(k) {
			out[k] = v
		}
	}
	return out
}
