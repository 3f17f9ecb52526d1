package assemble

import (
	"bytes"
	"fmt"
	"text/template"
)

// Install script shipped under assets/. Copies the package into a chosen
// root and redoes the text relocation when that root is not the baked-in
// default. Binaries need no treatment at install time: their search paths
// are $ORIGIN-relative.
var installTmpl = template.Must(template.New("install").Parse(`#!/bin/sh
# Installs {{.Product}} {{.Version}} under a chosen root.
# Usage: install.sh [root]   (default {{.DefaultRoot}})
set -eu

root="${1:-{{.DefaultRoot}}}"
here="$(cd "$(dirname "$0")/.." && pwd)"

mkdir -p "$root"
cp -R "$here/view" "$here/module" "$root/"

if [ "$root" != "{{.DefaultRoot}}" ]; then
    grep -rIl '{{.DefaultView}}' "$root/view" 2>/dev/null | while IFS= read -r f; do
        sed -i "s|{{.DefaultView}}|$root/view|g" "$f"
    done
fi

echo "{{.Product}} {{.Version}} installed at $root"
echo "enable it with: module use $root/module && module load {{.Product}}/{{.Version}}"
echo "or set {{.OverrideVar}}=$root and source the shipped env.sh"
`))

type installData struct {
	Product     string
	Version     string
	DefaultRoot string
	DefaultView string
	OverrideVar string
}

func renderInstallScript(product, version string) ([]byte, error) {
	root := DefaultRoot(product, version)
	data := installData{
		Product:     product,
		Version:     version,
		DefaultRoot: root,
		DefaultView: root + "/view",
		OverrideVar: OverrideVar(product),
	}
	var b bytes.Buffer
	if err := installTmpl.Execute(&b, data); err != nil {
		return nil, fmt.Errorf("%w: install script: %v", ErrAssemble, err)
	}
	return b.Bytes(), nil
}

// Sourceable fallback for sites without an environment-modules system.
func renderEnvScript(product, version string) []byte {
	override := OverrideVar(product)
	root := DefaultRoot(product, version)

	var b bytes.Buffer
	fmt.Fprintf(&b, "# Shell environment for %s %s without the module system.\n", product, version)
	fmt.Fprintf(&b, "# Usage: . env.sh  (set %s first when installed off the default root).\n", override)
	fmt.Fprintf(&b, "root=\"${%s:-%s}\"\n", override, root)
	b.WriteString("export PATH=\"$root/view/bin:$PATH\"\n")
	b.WriteString("export LD_LIBRARY_PATH=\"$root/view/lib:${LD_LIBRARY_PATH:-}\"\n")
	b.WriteString("export MANPATH=\"$root/view/share/man:${MANPATH:-}\"\n")
	fmt.Fprintf(&b, "export %s=\"$root\"\n", override)
	return b.Bytes()
}
