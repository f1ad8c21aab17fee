package auth

import (
    "crypto/hmac"
    "crypto/sha256"
    "encoding/base64"
    "encoding/hex"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"
)

var (
    ErrTokenFormat  = errors.New("invalid token format")
    ErrTokenSig     = errors.New("invalid token signature")
    ErrTokenExp     = errors.New("token expired")
    ErrTokenSID     = errors.New("session id mismatch")
    ErrTokenMissing = errors.New("missing token")
    ErrNoSecret     = errors.New("client auth not configured")
)

// GenerateClientToken builds a token binding a voice client to one debugging session.
// Format: base64url(session_id + "." + exp_unix + "." + hex(hmac_sha256(secret, session_id+"."+exp)))
func GenerateClientToken(secret, sessionID string, expUnix int64) (string, error) {
    if secret == "" {
        return "", ErrNoSecret
    }
    msg := sessionID + "." + strconv.FormatInt(expUnix, 10)
    raw := msg + "." + sign(secret, msg)
    return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// ValidateClientToken parses and validates the token.
// Returns the embedded sessionID and exp.
func ValidateClientToken(secret, token, expectSessionID string, now time.Time, skewSeconds int) (string, int64, error) {
    if secret == "" {
        return "", 0, ErrNoSecret
    }
    b, err := base64.RawURLEncoding.DecodeString(token)
    if err != nil {
        return "", 0, ErrTokenFormat
    }
    // session ids are uuids, so the last two dots delimit exp and signature
    s := string(b)
    i := strings.LastIndex(s, ".")
    if i < 0 {
        return "", 0, ErrTokenFormat
    }
    msg, sigHex := s[:i], s[i+1:]
    j := strings.LastIndex(msg, ".")
    if j < 0 {
        return "", 0, ErrTokenFormat
    }
    sid, expStr := msg[:j], msg[j+1:]
    exp, err := strconv.ParseInt(expStr, 10, 64)
    if err != nil || sid == "" {
        return "", 0, ErrTokenFormat
    }
    if expectSessionID != "" && sid != expectSessionID {
        return "", 0, ErrTokenSID
    }
    got, err := hex.DecodeString(sigHex)
    if err != nil {
        return "", 0, ErrTokenFormat
    }
    want, _ := hex.DecodeString(sign(secret, msg))
    // constant-time compare
    if !hmac.Equal(want, got) {
        return "", 0, ErrTokenSig
    }
    // token invalid once now > exp+skew
    if now.Unix() > exp+int64(skewSeconds) {
        return "", 0, ErrTokenExp
    }
    return sid, exp, nil
}

// Issuer mints and checks client tokens with fixed settings.
type Issuer struct {
    Secret      string
    TTL         time.Duration
    SkewSeconds int
}

// Issue returns a token for sessionID valid for TTL from now.
func (i Issuer) Issue(sessionID string, now time.Time) (string, time.Time, error) {
    exp := now.Add(i.TTL)
    tok, err := GenerateClientToken(i.Secret, sessionID, exp.Unix())
    return tok, exp, err
}

func (i Issuer) Validate(token, sessionID string, now time.Time) error {
    _, _, err := ValidateClientToken(i.Secret, token, sessionID, now, i.SkewSeconds)
    return err
}

// TokenFromRequest reads a bearer token, falling back to the token query
// parameter for browser websocket clients that cannot set headers.
func TokenFromRequest(r *http.Request) (string, error) {
    if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
        return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer ")), nil
    }
    if tok := r.URL.Query().Get("token"); tok != "" {
        return tok, nil
    }
    return "", ErrTokenMissing
}

func sign(secret, msg string) string {
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write([]byte(msg))
    return hex.EncodeToString(mac.Sum(nil))
}
