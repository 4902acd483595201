package redis

import "strings"

const (
	keyNamespace = "settle"

	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	lockPrefix        = "lock"
)

func (c *Client) IdempotencyKey(scope, id string) string {
	return namespaced(idempotencyPrefix, scope, id)
}

func (c *Client) RateLimitKey(parts ...string) string {
	return namespaced(append([]string{rateLimitPrefix}, parts...)...)
}

func (c *Client) LockKey(name string) string {
	return namespaced(lockPrefix, name)
}

// namespaced joins the non-blank parts under the settle namespace.
func namespaced(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
