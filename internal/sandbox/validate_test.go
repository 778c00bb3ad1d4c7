package sandbox

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labmate/labmate/internal/types"
)

func TestPolicyCheck(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		allowed bool
	}{
		{name: "plain arithmetic", code: "a = 2\nb = 3\nprint(a + b)", allowed: true},
		{name: "nested builtin calls", code: "xs = [1, 2]\nprint(len(xs), sum(xs))", allowed: true},
		{name: "safe import with alias", code: "import math as m, random\nprint(m.pi)", allowed: true},
		{name: "list append", code: "xs = []\nxs.append(1)", allowed: true},
		{name: "import os", code: "import os"},
		{name: "dotted import", code: "import os.path"},
		{name: "aliased blocked import", code: "import math, subprocess as sp"},
		{name: "semicolon separated safe imports", code: "import math; import random\nprint(math.pi)", allowed: true},
		{name: "import after semicolon", code: "import math; import os\nprint(os.getcwd())"},
		{name: "import after statement", code: "x = 1; import subprocess\nprint(x)"},
		{name: "from import after semicolon", code: "x = 1;from shutil import rmtree"},
		{name: "import in compound statement", code: "if True: import os"},
		{name: "importlib", code: "import importlib"},
		{name: "from import", code: "from socket import socket"},
		{name: "from import blocked name", code: "from builtins import (eval, print)"},
		{name: "open call", code: "data = open('x.txt')"},
		{name: "input call", code: "name = input()"},
		{name: "eval call", code: "eval('1+1')"},
		{name: "dunder attribute", code: "print(().__class__.__bases__)"},
		{name: "file write", code: "f.write('x')"},
		{name: "network", code: "urllib.request.urlopen('http://x')"},
	}

	p := DefaultPolicy(DefaultMaxCodeLength)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.code)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrRejected), "got %v", err)
			assert.Equal(t, types.KindValidation, types.KindOf(err))
		})
	}
}

func TestPolicyCheckEmptyAndLength(t *testing.T) {
	p := DefaultPolicy(10)

	err := p.Check("  \n ")
	assert.True(t, errors.Is(err, types.ErrNoCode))

	err = p.Check(strings.Repeat("x", 11))
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "too long")

	assert.NoError(t, p.Check(strings.Repeat("x", 10)))
}
