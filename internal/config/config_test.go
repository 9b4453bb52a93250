package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, ":8098", v.GetString("listen"))
	assert.Equal(t, ":8087", v.GetString("protocol_listen"))
	assert.Equal(t, "info", v.GetString("log_level"))
}

func TestSetDefaults_Metadata(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, "badger", v.GetString("metadata.engine"))
	assert.False(t, v.GetBool("metadata.sync_writes"))
}

func TestSetDefaults_Enumerator(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, "local", v.GetString("enumerator.engine"))
	assert.Equal(t, 100, v.GetInt("enumerator.batch_size"))
	assert.Equal(t, 60, v.GetInt("enumerator.default_timeout"))
	assert.Equal(t, "us-east-1", v.GetString("enumerator.s3.region"))
}

func TestSetDefaults_MetricsAndAudit(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.True(t, v.GetBool("metrics.enable"))
	assert.Equal(t, "/metrics", v.GetString("metrics.path"))
	assert.True(t, v.GetBool("audit.enable"))
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Listen:         ":8098",
		ProtocolListen: ":8087",
		DataDir:        t.TempDir(),
		LogLevel:       "info",
		Metadata:       MetadataConfig{Engine: "badger"},
		Enumerator:     EnumeratorConfig{Engine: "local", BatchSize: 100},
	}
}

func TestValidate(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, validate(cfg))
}

func TestValidate_DataDirRequired(t *testing.T) {
	cfg := validConfig(t)
	cfg.DataDir = ""
	assert.Error(t, validate(cfg))
}

func TestValidate_UnknownEngines(t *testing.T) {
	cfg := validConfig(t)
	cfg.Metadata.Engine = "leveldb"
	assert.Error(t, validate(cfg))

	cfg = validConfig(t)
	cfg.Enumerator.Engine = "dynamo"
	assert.Error(t, validate(cfg))
}

func TestValidate_S3EndpointRequired(t *testing.T) {
	cfg := validConfig(t)
	cfg.Enumerator.Engine = "s3"
	assert.Error(t, validate(cfg))

	cfg.Enumerator.S3.Endpoint = "http://localhost:9000"
	assert.NoError(t, validate(cfg))
}

func TestValidate_BatchSizePositive(t *testing.T) {
	cfg := validConfig(t)
	cfg.Enumerator.BatchSize = 0
	assert.Error(t, validate(cfg))
}
