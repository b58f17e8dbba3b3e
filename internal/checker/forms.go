package checker

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FormInventory is a static summary of the forms found in an HTML document.
type FormInventory struct {
	Forms          int      `json:"forms"`
	PasswordInputs int      `json:"passwordInputs"`
	UsernameFields []string `json:"usernameFields,omitempty"`
	SubmitControls int      `json:"submitControls"`
}

// HasLoginForm reports whether the page contains a password input.
func (f FormInventory) HasLoginForm() bool {
	return f.PasswordInputs > 0
}

// UsernameSelector matches the fields a login form uses for the account name.
const UsernameSelector = `input[name*="user"], input[name*="login"], input[name*="email"], input[id*="user"]`

// SubmitSelector matches submit controls of a login form.
const SubmitSelector = `button[type="submit"], input[type="submit"]`

// PasswordSelector matches password inputs.
const PasswordSelector = `input[type="password"]`

// InventoryForms parses html and counts login-relevant controls.
func InventoryForms(html string) (FormInventory, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return FormInventory{}, err
	}

	inv := FormInventory{
		Forms:          doc.Find("form").Length(),
		PasswordInputs: doc.Find(PasswordSelector).Length(),
		SubmitControls: doc.Find(SubmitSelector).Length(),
	}
	doc.Find(UsernameSelector).Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			name, _ = s.Attr("id")
		}
		if name != "" {
			inv.UsernameFields = append(inv.UsernameFields, name)
		}
	})
	return inv, nil
}
