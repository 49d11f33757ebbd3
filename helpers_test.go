package glidein

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/PelicanPlatform/classad/classad"
)

const (
	testIdentity   = "vofrontend_service@cm.example.com"
	testSecName    = "vofrontend_service"
	testEntry      = "testCE"
	testAdName     = "testCE@gfactory_instance@gfactory_service"
	testClientName = "vofrontend_service.main"
	testKeyID      = "factory-key-1"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return testKey
}

// writeScript writes an executable shell script standing in for an HTCondor tool.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// fakeQuerier serves canned ads: the first call gets names, later calls get full ads.
type fakeQuerier struct {
	names       []*classad.ClassAd
	full        []*classad.ClassAd
	err         error
	constraints []string
	projections [][]string
}

func (f *fakeQuerier) QueryAdsWithProjection(_ context.Context, _ string, constraint string, projection []string) ([]*classad.ClassAd, error) {
	f.constraints = append(f.constraints, constraint)
	f.projections = append(f.projections, projection)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.constraints) == 1 {
		return f.names, nil
	}
	return f.full, nil
}

// frontendFixture plays the frontend side: it encrypts ads for the factory key.
type frontendFixture struct {
	keys      *FactoryKeys
	rsaKey    *RSAKey
	sym       *CBCKey
	symCode   string
	frontends *FrontendDescript
}

func newFrontendFixture(t *testing.T) *frontendFixture {
	t.Helper()
	priv := testRSAKey(t)

	keyFile := filepath.Join(t.TempDir(), "rsa.key")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	if err := os.WriteFile(keyFile, pemBytes, 0o600); err != nil {
		t.Fatal(err)
	}

	key := make([]byte, 16)
	iv := make([]byte, 16)
	_, _ = rand.Read(key)
	_, _ = rand.Read(iv)
	symCode := "cypher:aes_128_cbc,key:" + hex.EncodeToString(key) + ",iv:" + hex.EncodeToString(iv)
	sym, err := ParseSymmetricKey(symCode)
	if err != nil {
		t.Fatalf("ParseSymmetricKey failed: %v", err)
	}

	frontends, err := NewFrontendDescript(strings.NewReader(
		testSecName + ".IDENTITY = " + testIdentity + "\n" +
			testSecName + ".USERMAP = frontend:alice, pilot:fepilot\n"))
	if err != nil {
		t.Fatal(err)
	}

	return &frontendFixture{
		keys:      &FactoryKeys{KeyFile: keyFile, KeyID: testKeyID},
		rsaKey:    NewRSAKey(priv, testKeyID),
		sym:       sym,
		symCode:   symCode,
		frontends: frontends,
	}
}

func (f *frontendFixture) encryptedKeyCode(t *testing.T) string {
	t.Helper()
	enc, err := f.rsaKey.EncryptHex([]byte(f.symCode))
	if err != nil {
		t.Fatalf("EncryptHex failed: %v", err)
	}
	return enc
}

// newSignedAd builds a full glideclient ad. overrides replace encrypted or
// plain attributes after encryption.
func (f *frontendFixture) newSignedAd(t *testing.T, securityClass, proxyID string, overrides map[string]string) *classad.ClassAd {
	t.Helper()
	ad := classad.New()
	set := func(name, value string) {
		if err := ad.Set(name, value); err != nil {
			t.Fatalf("Set(%s) failed: %v", name, err)
		}
	}

	set("MyType", "glideclient")
	set(AttrName, testAdName)
	set(AttrClientName, testClientName)
	set(AttrAuthenticatedIdentity, testIdentity)
	set(AttrReqName, testAdName)
	set(AttrReqPubKeyID, testKeyID)
	set("WebURL", "http://fe.example.com/vofrontend/stage")
	set("WebSignType", "sha1")
	set("WebDescriptFile", "description.fe1a.cfg")
	set("WebDescriptSign", "0123abcd")
	set("GroupName", "main")
	set("WebGroupURL", "http://fe.example.com/vofrontend/stage/group_main")
	set("WebGroupDescriptFile", "description.fe1a.cfg")
	set("WebGroupDescriptSign", "4567ef01")

	set(AttrReqEncKeyCode, f.encryptedKeyCode(t))
	set(AttrReqEncIdentity, f.sym.EncryptHex([]byte(testIdentity)))
	set(AttrEncSecurityName, f.sym.EncryptHex([]byte(testSecName)))
	set(AttrEncSecurityClass, f.sym.EncryptHex([]byte(securityClass)))
	set(AttrEncSubmitProxy, f.sym.EncryptHex([]byte(proxyID)))

	for k, v := range overrides {
		set(k, v)
	}
	return ad
}

func nameAd(t *testing.T, name string) *classad.ClassAd {
	t.Helper()
	ad := classad.New()
	if err := ad.Set(AttrName, name); err != nil {
		t.Fatal(err)
	}
	return ad
}
