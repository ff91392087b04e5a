package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opendental/eob-processor/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecrets(env string) StaticResolver {
	prefix := SecretPrefix(env)
	return StaticResolver{
		prefix + "/ocr_endpoint":         "https://ocr.example.com",
		prefix + "/ocr_subscription_key": "ocr-key",
		prefix + "/llm_endpoint":         "https://llm.example.com",
		prefix + "/llm_subscription_key": "llm-key",
	}
}

func writePrompt(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "system_prompt.txt")
	if err := os.WriteFile(path, []byte("Extract EOB fields.\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EOB_EXTRACTION_PROMPT_PATH", writePrompt(t))

	cfg, err := Load(context.Background(), "", testSecrets("dev"))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "prebuilt-layout", cfg.OCR.Model)
	assert.Equal(t, "https://ocr.example.com", cfg.OCR.Endpoint)
	assert.Equal(t, "llm-key", cfg.LLM.SubscriptionKey)
	assert.Equal(t, []string{"Records"}, cfg.Extraction.RequiredKeys)
	assert.Equal(t, "Extract EOB fields.", cfg.Extraction.Prompt)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EOB_EXTRACTION_PROMPT_PATH", writePrompt(t))
	t.Setenv("ENV", "prod")
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("BUCKET_NAME", "prod-eob-upload")
	t.Setenv("POSTPROCESS_FUNCTION_URL", "https://lambda.example.com/postprocess")
	t.Setenv("PORT", "9090")

	cfg, err := Load(context.Background(), "", testSecrets("prod"))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "us-west-2", cfg.Region)
	assert.Equal(t, "prod-eob-upload", cfg.Storage.Bucket)
	assert.Equal(t, "https://lambda.example.com/postprocess", cfg.Notify.FunctionURL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadMissingSecretIsFatal(t *testing.T) {
	t.Setenv("EOB_EXTRACTION_PROMPT_PATH", writePrompt(t))

	resolver := testSecrets("dev")
	delete(resolver, SecretPrefix("dev")+"/llm_subscription_key")

	_, err := Load(context.Background(), "", resolver)
	require.Error(t, err)
	assert.Equal(t, errors.ErrSecretUnavailable.Code, errors.GetCode(err))
}

func TestLoadMissingPromptIsFatal(t *testing.T) {
	t.Setenv("EOB_EXTRACTION_PROMPT_PATH", filepath.Join(t.TempDir(), "absent.txt"))

	_, err := Load(context.Background(), "", testSecrets("dev"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrConfigMissing.Code, errors.GetCode(err))
}

func TestSecretPrefixScopedByEnv(t *testing.T) {
	assert.Equal(t, "/opendental/staging", SecretPrefix("staging"))
}
