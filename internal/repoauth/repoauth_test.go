package repoauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMethod(t *testing.T) {
	assert.Equal(t, MethodPublic, NormalizeMethod(""))
	assert.Equal(t, MethodPublic, NormalizeMethod("public"))
	assert.Equal(t, MethodPublic, NormalizeMethod("  Public "))
	assert.Equal(t, MethodDeployKey, NormalizeMethod("deploy_key"))
	assert.Equal(t, MethodDeployKey, NormalizeMethod("deploy-key"))
	assert.Equal(t, MethodDeployKey, NormalizeMethod("DeployKey"))
	assert.Equal(t, "", NormalizeMethod("kerberos"))
}

func TestNormalizeDeployKey(t *testing.T) {
	assert.Equal(t, "", NormalizeDeployKey("   "))
	assert.Equal(t, "key\n", NormalizeDeployKey("key"))
	assert.Equal(t, "a\nb\n", NormalizeDeployKey("a\r\nb\r\n"))
	// Literal \n sequences from JSON clients are expanded.
	assert.Equal(t, "line1\nline2\n", NormalizeDeployKey(`line1\nline2`))
}

func TestValidateCreateInput(t *testing.T) {
	assert.Error(t, ValidateCreateInput("", MethodPublic, ""))
	assert.NoError(t, ValidateCreateInput("https://github.com/example/app.git", MethodPublic, ""))
	assert.Error(t, ValidateCreateInput("https://github.com/example/app.git", "bogus", ""))

	// Deploy key mode requires a key and an SSH URL on github.com.
	assert.Error(t, ValidateCreateInput("git@github.com:example/app.git", MethodDeployKey, ""))
	assert.Error(t, ValidateCreateInput("https://github.com/example/app.git", MethodDeployKey, "not-a-key"))
	assert.Error(t, ValidateCreateInput("git@gitlab.com:example/app.git", MethodDeployKey, "not-a-key"))
}

func TestHostFromRepoURL(t *testing.T) {
	host, err := hostFromRepoURL("https://github.com/example/app.git")
	assert.NoError(t, err)
	assert.Equal(t, "github.com", host)

	host, err = hostFromRepoURL("git@github.com:example/app.git")
	assert.NoError(t, err)
	assert.Equal(t, "github.com", host)

	_, err = hostFromRepoURL("nonsense")
	assert.Error(t, err)
}
