package viewer

import (
	"strings"
	"testing"
)

func TestBuildURI(t *testing.T) {
	tests := []struct {
		name    string
		roots   []string
		path    string
		wantURI string
		wantErr bool
	}{
		{
			name:    "source pdf",
			roots:   []string{"/home/ada/papers/inbox", "/home/ada/papers/library"},
			path:    "/home/ada/papers/inbox/vaswani2017.pdf",
			wantURI: "file:///home/ada/papers/inbox/vaswani2017.pdf",
		},
		{
			name:    "artifact with spaces",
			roots:   []string{"/home/ada/My Papers/library"},
			path:    "/home/ada/My Papers/library/vaswani2017/summary.md",
			wantURI: "file:///home/ada/My%20Papers/library/vaswani2017/summary.md",
		},
		{
			name:    "outside every root",
			roots:   []string{"/home/ada/papers/library"},
			path:    "/etc/passwd",
			wantErr: true,
		},
		{
			name:    "sibling with shared prefix",
			roots:   []string{"/home/ada/papers/library"},
			path:    "/home/ada/papers/library-old/a.pdf",
			wantErr: true,
		},
		{
			name:    "climbs out with dot dot",
			roots:   []string{"/home/ada/papers/library"},
			path:    "/home/ada/papers/library/../secrets.txt",
			wantErr: true,
		},
		{
			name:    "no roots",
			path:    "/home/ada/papers/library/a.pdf",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewOpener(tt.roots...).BuildURI(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BuildURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.wantURI {
				t.Errorf("BuildURI() = %q, want %q", got, tt.wantURI)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		goos    string
		want    string
		wantErr bool
	}{
		{goos: "linux", want: "xdg-open file:///lib/a.pdf"},
		{goos: "darwin", want: "open file:///lib/a.pdf"},
		{goos: "windows", want: "cmd /c start  file:///lib/a.pdf"},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			o := NewOpener("/lib")
			o.goos = tt.goos
			var got string
			o.run = func(name string, args ...string) error {
				got = strings.Join(append([]string{name}, args...), " ")
				return nil
			}

			err := o.Open("/lib/a.pdf")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ran %q, want %q", got, tt.want)
			}
		})
	}
}
