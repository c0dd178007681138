package auth

import (
	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/locator"
)

// Catalog holds the login page controls, each with its ranked fallbacks.
type Catalog struct {
	Identifier locator.Spec
	SendCode   locator.Spec
	Code       locator.Spec
	Confirm    locator.Spec
}

// DefaultCatalog returns the creator platform's login controls.
func DefaultCatalog() Catalog {
	return Catalog{
		Identifier: locator.New("phone input",
			browser.CSS("input[placeholder='手机号'].css-19z0sa3.css-nt440g.dyn"),
			browser.CSS("input[placeholder='手机号']"),
		).Present(),
		SendCode: locator.New("send code",
			browser.XPath("//div[contains(@class, 'css-1vfl29') and text()='发送验证码']"),
			browser.Text("发送验证码"),
			browser.CSS(".send-code-btn"),
		),
		Code: locator.New("code input",
			browser.CSS("input[placeholder='验证码'].css-19z0sa3.css-1ge5flv.dyn"),
			browser.CSS("input[placeholder='验证码'].css-19z0sa3.css-nt440g.dyn"),
			browser.CSS("input[placeholder='验证码']"),
		).Present(),
		Confirm: locator.New("login confirm",
			browser.CSS("button.css-1jgt0wa.css-y4h4ay.dyn.beer-login-btn"),
			browser.CSS("button[type='submit']"),
			browser.CSS("button.css-1525zvt.css-q63c9r.dyn"),
			browser.XPath("//button[.//span[contains(text(), '登录')]]"),
		),
	}
}
