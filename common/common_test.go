package common

import (
	"context"
	"errors"
	"testing"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureCLI(t *testing.T) {
	t.Setenv("AUCTIONTEST_MAX_WORKERS", "8")

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	ConfigureCLI(v, "AUCTIONTEST", []Flag{
		{Name: "listen", DefValue: "tcp://127.0.0.1:5005", Description: "listen address"},
		{Name: "max-workers", DefValue: 4, Description: "worker limit"},
		{Name: "log-debug", DefValue: false, Description: "debug logs"},
	}, fs)

	require.NoError(t, fs.Parse([]string{"--log-debug"}))
	assert.Equal(t, "tcp://127.0.0.1:5005", v.GetString("listen"))
	assert.Equal(t, 8, v.GetInt("max-workers"))
	assert.True(t, v.GetBool("log-debug"))
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AUCTIONTEST_HOME", "/var/lib/auction")

	v := viper.New()
	v.Set("repo", "${AUCTIONTEST_HOME}/repo")
	ExpandEnvVars(v, v.AllSettings())
	assert.Equal(t, "/var/lib/auction/repo", v.GetString("repo"))
}

func TestSetLogLevels(t *testing.T) {
	logging.Logger("auction/test")
	require.NoError(t, SetLogLevels(map[string]logging.LogLevel{"auction/test": logging.LevelDebug}))
	require.NoError(t, SetLogLevels(map[string]logging.LogLevel{"*": logging.LevelError}))
	require.Error(t, SetLogLevels(map[string]logging.LogLevel{"auction/missing": logging.LevelInfo}))
}

func TestMustJSONIndent(t *testing.T) {
	assert.Equal(t, "{\n \"a\": 1\n}", MustJSONIndent(map[string]int{"a": 1}))
}

type closer struct {
	name  string
	order *[]string
	err   error
}

func (c closer) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestFinalizer(t *testing.T) {
	var order []string
	_, cancel := context.WithCancel(context.Background())

	fin := NewFinalizer()
	fin.Add(closer{name: "store", order: &order})
	fin.Add(NewContextCloser(cancel))
	fin.AddFn(func() { order = append(order, "fn") })
	fin.Add(closer{name: "server", order: &order, err: errors.New("close server")})

	err := fin.Cleanupf("daemon: %w", errors.New("boom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon: boom")
	assert.Contains(t, err.Error(), "close server")
	assert.Equal(t, []string{"server", "fn", "store"}, order)

	assert.NoError(t, NewFinalizer().Cleanup(nil))
}
