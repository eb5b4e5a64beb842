package contextkeys

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/todo-acl/pkg/auth"
)

func TestIdentity(t *testing.T) {
	ctx := context.Background()

	_, ok := GetIdentity(ctx)
	assert.False(t, ok)

	id := auth.NewIdentity(&auth.User{Username: "alice", Role: auth.RoleEditor}, auth.SchemeBasic)
	got, ok := GetIdentity(WithIdentity(ctx, id))
	assert.True(t, ok)
	assert.Same(t, id, got)

	_, ok = GetIdentity(WithIdentity(ctx, nil))
	assert.False(t, ok, "a nil identity is not an identity")
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))
	assert.Equal(t, "abc", GetRequestID(WithRequestID(context.Background(), "abc")))
}

func TestLogger(t *testing.T) {
	assert.Equal(t, logrus.StandardLogger(), GetLogger(context.Background()))

	entry := logrus.New().WithField("request_id", "abc")
	assert.Equal(t, entry, GetLogger(WithLogger(context.Background(), entry)))
}
