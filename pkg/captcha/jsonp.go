package captcha

import (
	"fmt"
	"strings"

	"github.com/cxsign/cxsign/pkg/common"
)

// stripJSONP unwraps "<callback>(<json>)" responses.
func stripJSONP(body, callback string) (string, error) {
	body = strings.TrimSpace(body)

	prefix := callback + "("
	if !strings.HasPrefix(body, prefix) {
		return "", fmt.Errorf("%w: jsonp wrapper %q not found", common.ErrParse, callback)
	}
	if !strings.HasSuffix(body, ")") {
		return "", fmt.Errorf("%w: unterminated jsonp wrapper", common.ErrParse)
	}

	return body[len(prefix) : len(body)-1], nil
}
