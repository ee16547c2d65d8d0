package claims

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshkit/meshhost/internal/keys"
)

func TestSignAndDecode(t *testing.T) {
	issuer, err := keys.Generate(keys.KindHost)
	require.NoError(t, err)
	module, err := keys.Generate(keys.KindComponent)
	require.NoError(t, err)

	tok, err := Sign(issuer, module.PublicKeyID(), Payload{
		Name:         "billing",
		Version:      "0.3.1",
		Revision:     4,
		Capabilities: []string{"mesh:keyvalue"},
	})
	require.NoError(t, err)

	c, err := Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, module.PublicKeyID(), c.Subject())
	assert.Equal(t, issuer.PublicKeyID(), c.IssuerID())
	assert.Equal(t, "billing", c.Mesh.Name)
	assert.EqualValues(t, 4, c.Mesh.Revision)
}

func TestDecodeRejectsTampering(t *testing.T) {
	issuer, err := keys.Generate(keys.KindHost)
	require.NoError(t, err)
	module, err := keys.Generate(keys.KindProvider)
	require.NoError(t, err)

	tok, err := Sign(issuer, module.PublicKeyID(), Payload{Provider: true, ContractID: "mesh:keyvalue"})
	require.NoError(t, err)

	// Flip a character inside the payload segment.
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	body := []byte(parts[1])
	if body[0] == 'A' {
		body[0] = 'B'
	} else {
		body[0] = 'A'
	}
	parts[1] = string(body)

	_, err = Decode(strings.Join(parts, "."))
	assert.Error(t, err)
}

func TestInvocationClaims(t *testing.T) {
	host, err := keys.Generate(keys.KindHost)
	require.NoError(t, err)

	tok, err := SignInvocation(host, "inv-1", "Corigin", "Ptarget")
	require.NoError(t, err)

	c, err := VerifyInvocation(tok, "Corigin", "Ptarget")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", c.ID)

	_, err = VerifyInvocation(tok, "Corigin", "Pother")
	assert.Error(t, err)
}
