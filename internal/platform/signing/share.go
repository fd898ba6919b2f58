// Package signing produces and verifies HMAC-signed share links.
// A signed link grants read access to a playlist for a limited time
// without requiring the recipient to be logged in.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Signer struct {
	Secret []byte
}

type Signed struct {
	Resource string
	Exp      int64
	UID      string
	Sig      string
}

func New(secret string) *Signer {
	return &Signer{Secret: []byte(secret)}
}

// Sign signs a resource identifier (e.g. "playlist:<uuid>") on behalf of
// the sharing user, valid until exp.
func (s *Signer) Sign(resource, userID string, exp time.Time) Signed {
	sig := s.signValue(resource, userID, exp.Unix())
	return Signed{Resource: resource, Exp: exp.Unix(), UID: userID, Sig: sig}
}

func (s *Signer) Verify(resource, userID string, exp int64, sig string) bool {
	if time.Now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.signValue(resource, userID, exp)))
}

func (s *Signer) signValue(resource, userID string, exp int64) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(resource))
	mac.Write([]byte("|"))
	mac.Write([]byte(userID))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// BuildShareURL attaches the signed parameters to the public share base URL.
func BuildShareURL(base string, signed Signed) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("r", signed.Resource)
	q.Set("exp", strconv.FormatInt(signed.Exp, 10))
	q.Set("uid", signed.UID)
	q.Set("sig", signed.Sig)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func ExtractSigned(query url.Values) (resource, uid string, exp int64, sig string, err error) {
	resource = strings.TrimSpace(query.Get("r"))
	uid = strings.TrimSpace(query.Get("uid"))
	expStr := strings.TrimSpace(query.Get("exp"))
	sig = strings.TrimSpace(query.Get("sig"))
	if resource == "" || uid == "" || expStr == "" || sig == "" {
		return "", "", 0, "", fmt.Errorf("missing signed params")
	}
	exp, err = strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", "", 0, "", err
	}
	return resource, uid, exp, sig, nil
}
