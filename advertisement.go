package glidein

import (
	"github.com/PelicanPlatform/classad/classad"
)

// Attribute names of a frontend glideclient advertisement.
const (
	AttrName                  = "Name"
	AttrClientName            = "ClientName"
	AttrAuthenticatedIdentity = "AuthenticatedIdentity"
	AttrReqName               = "ReqName"
	AttrReqPubKeyID           = "ReqPubKeyID"
	AttrReqEncKeyCode         = "ReqEncKeyCode"
	AttrReqEncIdentity        = "ReqEncIdentity"
	AttrEncSecurityName       = "GlideinEncParamSecurityName"
	AttrEncSecurityClass      = "GlideinEncParamSecurityClass"
	AttrEncSubmitProxy        = "GlideinEncParamSubmitProxy"
)

// ClientWeb describes where the frontend publishes its signed web content.
type ClientWeb struct {
	URL               string
	SignType          string
	DescriptFile      string
	DescriptSign      string
	GroupName         string
	GroupURL          string
	GroupDescriptFile string
	GroupDescriptSign string
}

// Advertisement is one glideclient ad fetched from the collector. It is
// read-only after construction.
type Advertisement struct {
	Name                  string
	ClientName            string
	AuthenticatedIdentity string
	ReqName               string
	Web                   ClientWeb

	ad *classad.ClassAd
}

// NewAdvertisement wraps a collector ad.
func NewAdvertisement(ad *classad.ClassAd) *Advertisement {
	a := &Advertisement{ad: ad}
	a.Name = a.Attr(AttrName)
	a.ClientName = a.Attr(AttrClientName)
	a.AuthenticatedIdentity = a.Attr(AttrAuthenticatedIdentity)
	a.ReqName = a.Attr(AttrReqName)
	a.Web = ClientWeb{
		URL:               a.Attr("WebURL"),
		SignType:          a.Attr("WebSignType"),
		DescriptFile:      a.Attr("WebDescriptFile"),
		DescriptSign:      a.Attr("WebDescriptSign"),
		GroupName:         a.Attr("GroupName"),
		GroupURL:          a.Attr("WebGroupURL"),
		GroupDescriptFile: a.Attr("WebGroupDescriptFile"),
		GroupDescriptSign: a.Attr("WebGroupDescriptSign"),
	}
	return a
}

// Attr returns a string attribute of the ad, or "" when it is missing or not a string.
func (a *Advertisement) Attr(name string) string {
	if a == nil || a.ad == nil {
		return ""
	}
	v, _ := a.ad.EvaluateAttrString(name)
	return v
}

// CredentialRecord is the identity and proxy information needed to submit
// on a frontend user's behalf.
type CredentialRecord struct {
	UserName      string
	SecurityClass string
	ProxyID       string
	CredDir       string
	// Credentials maps a credential type (e.g. "SubmitProxy") to a file name
	// inside CredDir.
	Credentials map[string]string
}

// SubmitProxy is the credential type of the frontend's submit proxy.
const SubmitProxy = "SubmitProxy"
