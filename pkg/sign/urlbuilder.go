package sign

// URLBuilder accumulates the sign URL so the secondary-verification
// retry can extend the original request instead of rebuilding it.
type URLBuilder struct {
	url string
}

func NewURLBuilder(base string) *URLBuilder {
	return &URLBuilder{url: base}
}

func (b *URLBuilder) Append(fragment string) *URLBuilder {
	b.url += fragment
	return b
}

// WithEnc2 attaches the enc2 value extracted from a "validate…" sign
// response body.
func (b *URLBuilder) WithEnc2(enc2 string) *URLBuilder {
	return b.Append("&enc2=" + enc2)
}

// WithValidate attaches the solved captcha validate value.
func (b *URLBuilder) WithValidate(validate string) *URLBuilder {
	return b.Append("&validate=" + validate)
}

func (b *URLBuilder) URL() string {
	return b.url
}
