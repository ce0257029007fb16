package views

import (
	"github.com/rivo/tview"
)

// LoginView collects credentials when no session is present.
type LoginView struct {
	*tview.Form
	onSubmit func(email, password string)
	message  *tview.TextView
	root     *tview.Flex
}

// NewLoginView creates the login form.
func NewLoginView() *LoginView {
	lv := &LoginView{
		Form:    tview.NewForm(),
		message: tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter),
	}

	lv.Form.
		AddInputField("Email", "", 40, nil, nil).
		AddPasswordField("Password", "", 40, '*', nil).
		AddButton("Sign In", func() {
			if lv.onSubmit == nil {
				return
			}
			email := lv.GetFormItemByLabel("Email").(*tview.InputField).GetText()
			password := lv.GetFormItemByLabel("Password").(*tview.InputField).GetText()
			lv.onSubmit(email, password)
		})
	lv.Form.SetBorder(true).SetTitle(" Sign In ")

	lv.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(lv.Form, 0, 3, true).
		AddItem(lv.message, 2, 0, false)

	return lv
}

// Root returns the composite primitive including the message line.
func (lv *LoginView) Root() tview.Primitive {
	return lv.root
}

// SetOnSubmit sets the sign-in callback.
func (lv *LoginView) SetOnSubmit(fn func(email, password string)) {
	lv.onSubmit = fn
}

// ShowMessage displays a status or error line under the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.message.Clear()
	_, _ = lv.message.Write([]byte(msg))
}
