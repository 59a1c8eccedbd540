// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, "", Classify(nil))
}

func TestClassifyDeadlineExceeded(t *testing.T) {
	assert.Equal(t, "ETIMEDOUT", Classify(context.DeadlineExceeded))
}

func TestClassifyCanceled(t *testing.T) {
	assert.Equal(t, "ECANCELED", Classify(context.Canceled))
}

func TestClassifyClosed(t *testing.T) {
	assert.Equal(t, "ECONNCLOSED", Classify(net.ErrClosed))
}

func TestClassifyUnknown(t *testing.T) {
	assert.Equal(t, "EGENERIC", Classify(errors.New("something else")))
}
