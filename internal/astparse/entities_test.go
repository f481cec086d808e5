package astparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntities_Go(t *testing.T) {
	src := []byte(`package sample

func Add(a, b int) int {
	return a + b
}

type Engine struct {
	count int
}

func (e *Engine) Run() {
	Add(1, 2)
}
`)
	p := New()
	defer p.Close()

	entities, err := p.ParseEntities(context.Background(), LangGo, src)
	require.NoError(t, err)
	require.Len(t, entities, 3)
	assert.Equal(t, EntityFunction, entities[0].Kind)
	assert.Equal(t, "Add", entities[0].Name)
	assert.Equal(t, EntityStruct, entities[1].Kind)
	assert.Equal(t, "Engine", entities[1].Name)
	assert.Equal(t, EntityMethod, entities[2].Kind)
	assert.Equal(t, "Engine.Run", entities[2].Name)
}

func TestParseEntities_Python(t *testing.T) {
	src := []byte(`def helper():
    pass


class Worker:
    def run(self):
        helper()
`)
	p := New()
	defer p.Close()

	entities, err := p.ParseEntities(context.Background(), LangPython, src)
	require.NoError(t, err)
	require.Len(t, entities, 3)
	assert.Equal(t, "helper", entities[0].Name)
	assert.Equal(t, EntityClass, entities[1].Kind)
	assert.Equal(t, "Worker", entities[1].Name)
	assert.Equal(t, "Worker.run", entities[2].Name)
}

func TestParseEntities_UnsupportedLanguageErrors(t *testing.T) {
	p := New()
	defer p.Close()

	_, err := p.ParseEntities(context.Background(), LangUnknown, []byte("whatever"))
	assert.Error(t, err)
}

func TestLanguageForExt(t *testing.T) {
	assert.Equal(t, LangGo, LanguageForExt(".go"))
	assert.Equal(t, LangPython, LanguageForExt(".py"))
	assert.Equal(t, LangUnknown, LanguageForExt(".yaml"))
}

func TestFindReferencesPython_ClassifiesDefinitionVsUse(t *testing.T) {
	src := []byte(`def helper():
    pass


def caller():
    helper()
    helper()
`)
	p := New()
	defer p.Close()

	refs, err := p.FindReferencesPython(context.Background(), src, "helper")
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.True(t, refs[0].IsDefinition)
	assert.False(t, refs[1].IsDefinition)
	assert.False(t, refs[2].IsDefinition)
}
