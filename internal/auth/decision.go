package auth

import "strings"

// Effect is the outcome of an access decision.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// AnonymousPrincipal names the principal on a denied decision. Denials must
// never carry partial claim data.
const AnonymousPrincipal = "anonymous"

// Decision is the transient result of evaluating a presented credential.
// Identity is populated only when Effect is Allow.
type Decision struct {
	Effect   Effect
	Identity Identity
}

// Allowed reports whether the decision permits the request.
func (d Decision) Allowed() bool {
	return d.Effect == EffectAllow
}

// Policy is the gateway-authorizer view of a decision: a grant or denial
// scoped to exactly the resource the caller invoked.
type Policy struct {
	PrincipalID string           `json:"principal_id"`
	Effect      Effect           `json:"effect"`
	Resource    string           `json:"resource"`
	Context     *IdentityContext `json:"context,omitempty"`
}

// IdentityContext is the claim subset forwarded to downstream handlers on
// an allowed policy.
type IdentityContext struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	VersionStamp string `json:"version_stamp"`
}

// Decide evaluates a raw Authorization header value. Pure and side-effect
// free. The "Bearer <token>" scheme is required; a bare token is only
// honored on the out-of-band Authorize path.
func (c *Codec) Decide(credential string) Decision {
	token, ok := bearerToken(credential)
	if !ok {
		return Decision{Effect: EffectDeny}
	}
	return c.decideToken(token)
}

func (c *Codec) decideToken(token string) Decision {
	identity, err := c.VerifyToken(token)
	if err != nil {
		return Decision{Effect: EffectDeny}
	}
	return Decision{Effect: EffectAllow, Identity: identity}
}

// Authorize converts a presented credential into a policy scoped to the
// named resource. The gateway delivers the credential field verbatim, so
// both the "Bearer <token>" form and a bare token are honored here. An
// allowed policy names the caller as principal and attaches the identity
// context; a denied policy names the anonymous principal and carries no
// claims.
func (c *Codec) Authorize(credential, resource string) Policy {
	decision := Decision{Effect: EffectDeny}
	if token, ok := extractToken(credential); ok {
		decision = c.decideToken(token)
	}
	if !decision.Allowed() {
		return Policy{
			PrincipalID: AnonymousPrincipal,
			Effect:      EffectDeny,
			Resource:    resource,
		}
	}
	return Policy{
		PrincipalID: decision.Identity.Email,
		Effect:      EffectAllow,
		Resource:    resource,
		Context: &IdentityContext{
			Email:        decision.Identity.Email,
			Name:         decision.Identity.Name,
			VersionStamp: decision.Identity.VersionStamp,
		},
	}
}

// bearerToken requires the "Bearer <token>" form (scheme case-insensitive).
func bearerToken(credential string) (string, bool) {
	credential = strings.TrimSpace(credential)
	parts := strings.SplitN(credential, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// extractToken accepts the bearer form or a bare token with no embedded
// whitespace.
func extractToken(credential string) (string, bool) {
	if token, ok := bearerToken(credential); ok {
		return token, true
	}
	credential = strings.TrimSpace(credential)
	if credential == "" || strings.ContainsAny(credential, " \t") {
		return "", false
	}
	return credential, true
}
