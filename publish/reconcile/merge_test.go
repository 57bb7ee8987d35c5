package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/spec_publisher/publish/reconcile"
)

func TestCommandReconciler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		opts    reconcile.Options
		want    string
		wantErr bool
	}{
		{
			name: "inputs in order",
			body: `cat "$1" "$2"`,
			want: "old\nnew\n",
		},
		{
			name: "preset flag first",
			body: `printf '%s %s' "$1" "$2"`,
			opts: reconcile.Options{Preset: "commander"},
			want: "--preset commander",
		},
		{
			name:    "tool failure",
			body:    `echo conflict >&2; exit 1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()

			r := &reconcile.CommandReconciler{
				Cmd: []string{"sh", "-c", tt.body, "merge"},
				Dir: dir,
			}

			got, err := r.Reconcile(
				context.Background(), "old\n", "new\n", tt.opts,
			)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "conflict")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			assertEmptyDir(t, dir)
		})
	}
}

func TestCommandReconciler_empty_command(t *testing.T) {
	t.Parallel()

	r := &reconcile.CommandReconciler{}

	_, err := r.Reconcile(
		context.Background(), "a", "b", reconcile.Options{},
	)
	require.Error(t, err)
}
