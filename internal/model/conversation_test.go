// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_PrependIsNewestFirst(t *testing.T) {
	conv := NewConversation()
	ids := &SequenceIDs{}

	first := NewMessage(ids.NextID(), RoleUser, "first")
	second := NewMessage(ids.NextID(), RoleAssistant, "second")
	require.NoError(t, conv.Prepend(first))
	require.NoError(t, conv.Prepend(second))

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Content)
	assert.Equal(t, "first", msgs[1].Content)

	chrono := conv.Chronological()
	assert.Equal(t, "first", chrono[0].Content)
	assert.Equal(t, "second", chrono[1].Content)
	assert.Equal(t, "first", conv.Title)
}

func TestConversation_RejectsDuplicateID(t *testing.T) {
	conv := NewConversation()
	require.NoError(t, conv.Prepend(NewMessage("msg_1", RoleUser, "a")))

	err := conv.Prepend(NewMessage("msg_1", RoleUser, "b"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID))
	assert.Equal(t, 1, conv.Len())
}

func TestConversation_UpdateContentKeepsPosition(t *testing.T) {
	conv := NewConversation()
	require.NoError(t, conv.Prepend(NewMessage("msg_1", RoleUser, "q")))
	require.NoError(t, conv.Prepend(NewMessage("msg_2", RoleAssistant, "")))
	require.NoError(t, conv.UpdateContent("msg_2", "partial"))
	require.NoError(t, conv.UpdateContent("msg_2", "partial answer"))

	assert.Equal(t, "partial answer", conv.At(0).Content)
	assert.Equal(t, "msg_2", conv.At(0).ID)
	assert.Equal(t, 2, conv.Len())

	err := conv.UpdateContent("missing", "x")
	assert.True(t, errors.Is(err, ErrMessageNotFound))
}

func TestConversation_DeleteAndClear(t *testing.T) {
	conv := NewConversation()
	for i := 0; i < 3; i++ {
		require.NoError(t, conv.Prepend(NewMessage(string(rune('a'+i)), RoleUser, "x")))
	}

	assert.True(t, conv.Delete("b"))
	assert.False(t, conv.Delete("b"))
	assert.Nil(t, conv.Get("b"))
	assert.Equal(t, 2, conv.Len())

	// A deleted ID may be reused.
	require.NoError(t, conv.Prepend(NewMessage("b", RoleUser, "again")))

	conv.Clear()
	assert.True(t, conv.IsEmpty())
	assert.Equal(t, "New conversation", conv.GetTitle())
}

func TestConversation_MessagesReturnsCopies(t *testing.T) {
	conv := NewConversation()
	require.NoError(t, conv.Prepend(&Message{ID: "m", Role: RoleUser, Content: "orig", Files: []Attachment{{Name: "a.txt"}}}))

	msgs := conv.Messages()
	msgs[0].Content = "changed"
	msgs[0].Files[0].Name = "b.txt"

	assert.Equal(t, "orig", conv.Get("m").Content)
	assert.Equal(t, "a.txt", conv.Get("m").Files[0].Name)
}

func TestConversation_KeepsEveryMessage(t *testing.T) {
	conv := NewConversation()
	ids := &SequenceIDs{}
	const n = 1500
	for i := 0; i < n; i++ {
		require.NoError(t, conv.Prepend(NewMessage(ids.NextID(), RoleUser, "x")))
	}
	assert.Equal(t, n, conv.Len())
	assert.NotNil(t, conv.Get("msg_1"))
	assert.NotNil(t, conv.Get("msg_1500"))
	assert.Equal(t, "msg_1", conv.At(n-1).ID)
}

func TestConversation_Newest(t *testing.T) {
	conv := NewConversation()
	require.NoError(t, conv.Prepend(NewMessage("1", RoleUser, "u1")))
	require.NoError(t, conv.Prepend(NewMessage("2", RoleAssistant, "a1")))
	require.NoError(t, conv.Prepend(NewMessage("3", RoleError, "Error: x")))

	assert.Equal(t, "u1", conv.Newest(RoleUser).Content)
	assert.Equal(t, "a1", conv.Newest(RoleAssistant).Content)
	assert.Equal(t, "3", conv.Newest("").ID)
}

func TestSequenceIDs_UniqueUnderConcurrency(t *testing.T) {
	ids := &SequenceIDs{}
	seen := sync.Map{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				id := ids.NextID()
				if _, dup := seen.LoadOrStore(id, true); dup {
					t.Errorf("duplicate id %s", id)
				}
			}
		}()
	}
	wg.Wait()
}

func TestULIDs_Prefix(t *testing.T) {
	var gen ULIDs
	a, b := gen.NextID(), gen.NextID()
	assert.True(t, strings.HasPrefix(a, "msg_"))
	assert.NotEqual(t, a, b)
}

func TestMessage_Preview(t *testing.T) {
	m := &Message{Content: "héllo\nwörld, this is long"}
	assert.Equal(t, "héllo wörld, this is long", m.Preview(100))
	assert.Equal(t, "héllo w...", m.Preview(10))
}

func TestDemoHistory(t *testing.T) {
	demo := DemoHistory()
	require.Len(t, demo, 2)
	assert.Equal(t, RoleAssistant, demo[0].Role)
	assert.Equal(t, RoleUser, demo[1].Role)
}
