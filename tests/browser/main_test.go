package browser

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	code := m.Run()

	browserMu.Lock()
	if sharedBrowser != nil {
		_ = sharedBrowser.Close()
	}
	if sharedPW != nil {
		_ = sharedPW.Stop()
	}
	browserMu.Unlock()

	os.Exit(code)
}
