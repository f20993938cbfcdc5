package identifier

import (
	"encoding/json"
	"strings"

	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/uri"
)

// Document is a Controlled Identifier Document: the binding of an https
// identifier to its verification keys and service endpoints.
type Document struct {
	Context        contextList          `json:"@context"`
	ID             string               `json:"id"`
	Authentication []VerificationMethod `json:"authentication"`
	Service        []ServiceEndpoint    `json:"service,omitempty"`
}

// VerificationMethod binds a key to the document's controller.
type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Controller   string `json:"controller"`
	PublicKeyJwk *JWK   `json:"publicKeyJwk"`
}

// ServiceEndpoint describes a service advertised by the identifier.
type ServiceEndpoint struct {
	ID              string `json:"id,omitempty"`
	Type            string `json:"type,omitempty"`
	ServiceEndpoint string `json:"serviceEndpoint,omitempty"`
}

// contextList accepts both a bare string and an ordered array, the two forms
// JSON-LD contexts appear in.
type contextList []string

func (c *contextList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		s := string(data[1 : len(data)-1])
		*c = contextList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = contextList(list)
	return nil
}

// Validate checks the structural invariants of a document fetched as
// fetchedAs: the id must be present, absolute, and equal (after
// normalisation) to the identifier it was fetched under; every
// authentication entry must point its controller back at the id and carry a
// key; and each entry id must be either "<id>#<kid>" or the bare kid of its
// publicKeyJwk.
func (d *Document) Validate(fetchedAs string) error {
	if d.ID == "" {
		return errors.New(errors.ErrCodeInvalidDocument, "document has no id")
	}
	normID, err := uri.Normalize(d.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidDocument, "document id is not an absolute URI")
	}
	normFetched, err := uri.Normalize(fetchedAs)
	if err != nil {
		return err
	}
	if normID != normFetched {
		return errors.Newf(errors.ErrCodeInvalidDocument, "document id %q does not match identifier %q", d.ID, fetchedAs)
	}
	for i := range d.Authentication {
		vm := &d.Authentication[i]
		if vm.Controller != d.ID {
			return errors.Newf(errors.ErrCodeInvalidDocument, "authentication[%d].controller does not match document id", i)
		}
		if vm.PublicKeyJwk == nil {
			return errors.Newf(errors.ErrCodeInvalidDocument, "authentication[%d] has no publicKeyJwk", i)
		}
		if vm.ID == "" {
			return errors.Newf(errors.ErrCodeInvalidDocument, "authentication[%d] has no id", i)
		}
		if frag, ok := strings.CutPrefix(vm.ID, d.ID+"#"); ok {
			if frag == "" {
				return errors.Newf(errors.ErrCodeInvalidDocument, "authentication[%d] has an empty fragment", i)
			}
		} else if vm.ID != vm.PublicKeyJwk.Kid {
			return errors.Newf(errors.ErrCodeInvalidDocument, "authentication[%d].id is neither a fragment of the document id nor the key's kid", i)
		}
	}
	return nil
}

// VerificationMethodByKid finds the verification method for a key id. Search
// order: the fully qualified "<id>#<kid>" form, then an entry whose id is the
// raw kid, then an entry whose publicKeyJwk carries the kid. Returns nil when
// nothing matches.
func (d *Document) VerificationMethodByKid(kid string) *VerificationMethod {
	qualified := d.ID + "#" + kid
	for i := range d.Authentication {
		if d.Authentication[i].ID == qualified {
			return &d.Authentication[i]
		}
	}
	for i := range d.Authentication {
		if d.Authentication[i].ID == kid {
			return &d.Authentication[i]
		}
	}
	for i := range d.Authentication {
		if jwk := d.Authentication[i].PublicKeyJwk; jwk != nil && jwk.Kid == kid {
			return &d.Authentication[i]
		}
	}
	return nil
}
