package checker

import "testing"

func TestInventoryForms(t *testing.T) {
	html := `<html><body>
<form action="/login" method="post">
  <input type="text" name="username">
  <input type="password" name="password">
  <button type="submit">Sign in</button>
</form>
<form action="/search"><input name="q"></form>
</body></html>`

	inv, err := InventoryForms(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Forms != 2 {
		t.Errorf("forms = %d, want 2", inv.Forms)
	}
	if !inv.HasLoginForm() {
		t.Error("expected login form")
	}
	if len(inv.UsernameFields) != 1 || inv.UsernameFields[0] != "username" {
		t.Errorf("username fields = %v", inv.UsernameFields)
	}
	if inv.SubmitControls != 1 {
		t.Errorf("submit controls = %d, want 1", inv.SubmitControls)
	}
}

func TestInventoryForms_NoPassword(t *testing.T) {
	inv, err := InventoryForms(`<form><input id="user_email" type="email"></form>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.HasLoginForm() {
		t.Error("did not expect login form")
	}
	if len(inv.UsernameFields) != 1 || inv.UsernameFields[0] != "user_email" {
		t.Errorf("username fields = %v", inv.UsernameFields)
	}
}
