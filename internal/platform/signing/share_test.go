package signing

import (
	"net/url"
	"testing"
	"time"
)

func newSigner() *Signer { return New("test-signing-secret-32-bytes-ok!") }

const testResource = "playlist:7f9c24e8-3b2a-4f61-9d4e-0a1b2c3d4e5f"

func TestSign_Verify_HappyPath(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(time.Hour)

	signed := s.Sign(testResource, "user-1", exp)
	if !s.Verify(testResource, "user-1", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to return true for valid signature")
	}
}

func TestVerify_Expired(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(-time.Hour)

	signed := s.Sign(testResource, "user-1", exp)
	if s.Verify(testResource, "user-1", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to return false for expired signature")
	}
}

func TestVerify_TamperedResource(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(time.Hour)
	signed := s.Sign("playlist:aaa", "user-1", exp)

	if s.Verify("playlist:bbb", "user-1", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to fail for tampered resource")
	}
}

func TestVerify_TamperedUserID(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(time.Hour)
	signed := s.Sign("playlist:aaa", "user-1", exp)

	if s.Verify("playlist:aaa", "user-2", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to fail for different user")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	s1 := newSigner()
	s2 := New("different-secret-32-bytes-padded!!")
	exp := time.Now().Add(time.Hour)

	signed := s1.Sign("playlist:aaa", "user-1", exp)
	if s2.Verify("playlist:aaa", "user-1", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to fail with different secret")
	}
}

func TestBuildShareURL_ExtractSigned_Roundtrip(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(time.Hour)
	signed := s.Sign(testResource, "user-42", exp)

	shareURL, err := BuildShareURL("https://studytube.example.com/shared", signed)
	if err != nil {
		t.Fatalf("BuildShareURL: %v", err)
	}

	u, _ := url.Parse(shareURL)
	resource, uid, extractedExp, sig, err := ExtractSigned(u.Query())
	if err != nil {
		t.Fatalf("ExtractSigned: %v", err)
	}

	if resource != testResource {
		t.Fatalf("expected resource %q, got %q", testResource, resource)
	}
	if uid != "user-42" {
		t.Fatalf("expected uid 'user-42', got %q", uid)
	}
	if extractedExp != signed.Exp {
		t.Fatalf("expected exp %d, got %d", signed.Exp, extractedExp)
	}
	if !s.Verify(resource, uid, extractedExp, sig) {
		t.Fatal("extracted signature should verify successfully")
	}
}

func TestExtractSigned_MissingParams(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
	}{
		{"missing resource", url.Values{"uid": {"u"}, "exp": {"1"}, "sig": {"s"}}},
		{"missing uid", url.Values{"r": {"p"}, "exp": {"1"}, "sig": {"s"}}},
		{"missing exp", url.Values{"r": {"p"}, "uid": {"u"}, "sig": {"s"}}},
		{"missing sig", url.Values{"r": {"p"}, "uid": {"u"}, "exp": {"1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, _, err := ExtractSigned(tt.values)
			if err == nil {
				t.Fatal("expected error for missing param")
			}
		})
	}
}
