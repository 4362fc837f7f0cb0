package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnector_NameReportsSlack(t *testing.T) {
	c := New("xoxb-test", "xapp-test", nil)
	assert.Equal(t, "slack", c.Name())
}
