package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/utils"
)

func baseKey() KeyInput {
	return KeyInput{
		Provider:     "openrouter",
		Model:        "openai/gpt-4o",
		SystemPrompt: "Pick one letter",
		PromptCID:    "bafkreiabc",
		Temperature:  utils.Ptr(0.0),
		MaxTokens:    256,
	}
}

func TestKey(t *testing.T) {
	key1 := Key(baseKey())
	assert.Len(t, key1, 64)
	assert.Equal(t, key1, Key(baseKey()))
}

func TestKey_EachFieldChangesKey(t *testing.T) {
	base := Key(baseKey())

	mutations := map[string]func(*KeyInput){
		"provider":    func(k *KeyInput) { k.Provider = "anthropic" },
		"model":       func(k *KeyInput) { k.Model = "openai/gpt-4o-mini" },
		"system":      func(k *KeyInput) { k.SystemPrompt = "" },
		"prompt":      func(k *KeyInput) { k.PromptCID = "bafkreixyz" },
		"temperature": func(k *KeyInput) { k.Temperature = utils.Ptr(0.7) },
		"unset temp":  func(k *KeyInput) { k.Temperature = nil },
		"max tokens":  func(k *KeyInput) { k.MaxTokens = 512 },
		"extra":       func(k *KeyInput) { k.ProviderExtra = "https://other" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := baseKey()
			mutate(&in)
			assert.NotEqual(t, base, Key(in))
		})
	}
}

func TestKey_NoHashCollision(t *testing.T) {
	a := KeyInput{Provider: "ab", Model: "cd"}
	b := KeyInput{Provider: "abc", Model: "d"}
	assert.NotEqual(t, Key(a), Key(b), "field delimiters should prevent hash collisions")
}

func TestCache_GetPut(t *testing.T) {
	c := New(t.TempDir())
	key := Key(baseKey())

	retrieved, found := c.Get(key)
	assert.False(t, found)
	assert.Nil(t, retrieved)

	resp := &models.PromptResponse{
		Provider:        "openrouter",
		ModelID:         "openai/gpt-4o",
		Data:            "Answer is B",
		CID:             "bafkrei-data",
		InputTokensUsed: utils.Ptr(int64(12)),
	}
	require.NoError(t, c.Put(key, resp))

	retrieved, found = c.Get(key)
	require.True(t, found)
	assert.Equal(t, resp.Data, retrieved.Data)
	assert.Equal(t, int64(12), *retrieved.InputTokensUsed)

	_, err := os.Stat(filepath.Join(c.Dir(), key+".json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file is renamed into place")
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644))

	_, found := c.Get("bad")
	assert.False(t, found)
}

func TestCache_Clear(t *testing.T) {
	cacheDir := t.TempDir()
	c := New(cacheDir)

	resp := &models.PromptResponse{Data: "x"}
	require.NoError(t, c.Put("key1", resp))
	require.NoError(t, c.Put("key2", resp))

	require.NoError(t, c.Clear())

	_, found := c.Get("key1")
	assert.False(t, found)
	_, err := os.Stat(cacheDir)
	assert.True(t, os.IsNotExist(err))
}

func TestCache_Disabled(t *testing.T) {
	for _, c := range []*Cache{New(""), nil} {
		_, found := c.Get("any-key")
		assert.False(t, found)
		assert.NoError(t, c.Put("key", &models.PromptResponse{}))
		assert.NoError(t, c.Clear())
	}
}

func TestCache_Clear_SafetyChecks(t *testing.T) {
	t.Run("refuses to clear directory with subdirectories", func(t *testing.T) {
		cacheDir := t.TempDir()
		c := New(cacheDir)
		require.NoError(t, c.Put("key1", &models.PromptResponse{}))
		require.NoError(t, os.Mkdir(filepath.Join(cacheDir, "subdir"), 0755))

		err := c.Clear()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "subdirectories")
		_, err = os.Stat(cacheDir)
		assert.NoError(t, err)
	})

	t.Run("refuses to clear directory with non-json files", func(t *testing.T) {
		cacheDir := t.TempDir()
		c := New(cacheDir)
		require.NoError(t, c.Put("key1", &models.PromptResponse{}))
		require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "README.txt"), []byte("test"), 0644))

		err := c.Clear()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-cache files")
	})

	t.Run("clears empty cache directory", func(t *testing.T) {
		cacheDir := t.TempDir()
		require.NoError(t, New(cacheDir).Clear())
		_, err := os.Stat(cacheDir)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestCache_ConcurrentPut(t *testing.T) {
	cacheDir := t.TempDir()
	c := New(cacheDir)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, c.Put(fmt.Sprintf("key-%d-%d", id, j), &models.PromptResponse{Data: "x"}))
				assert.NoError(t, c.Put("shared", &models.PromptResponse{Data: fmt.Sprint(id)}))
			}
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Equal(t, 10*20+1, len(entries))

	got, found := c.Get("shared")
	require.True(t, found)
	assert.NotEmpty(t, got.Data)
}
