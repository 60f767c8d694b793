package provider

import "net/url"

// linkTokenParam is the query parameter the provider appends to the return
// URL when building a magic link. Its presence is what distinguishes a
// link return from a plain page load.
const linkTokenParam = "pv_token"

// emailParam carries the identifier the link was sent to, appended by us on
// send so the return leg can recover it even on a different device.
const emailParam = "email"

// IsLinkRedirect reports whether rawURL looks like a magic-link return.
func IsLinkRedirect(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Get(linkTokenParam) != ""
}

// EmailFromLink extracts the identifier embedded in a magic-link return URL.
// Returns "" when the URL carries none, which happens for links generated
// before identifier embedding or when the query was stripped in transit.
func EmailFromLink(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(emailParam)
}

// BuildReturnURL appends the identifier to the page URL the provider will
// redirect back to, keeping any existing query intact.
func BuildReturnURL(pageURL, email string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(emailParam, email)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
