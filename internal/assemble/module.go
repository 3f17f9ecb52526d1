package assemble

import (
	"bytes"
	"fmt"
	"text/template"
)

// Environment-modules descriptor (Lmod Lua dialect). The override variable
// is consulted at load time; the default root is baked in at assembly.
var moduleTmpl = template.Must(template.New("module").Parse(`-- {{.Product}} {{.Version}} ({{.Platform}})
help([[{{.Product}} {{.Version}}, built for {{.Platform}}.

Set {{.OverrideVar}} to the install root when the package does not live at
{{.DefaultRoot}}.]])

whatis("Name: {{.Product}}")
whatis("Version: {{.Version}}")
whatis("Platform: {{.Platform}}")

local root = os.getenv("{{.OverrideVar}}") or "{{.DefaultRoot}}"
local view = pathJoin(root, "view")

prepend_path("PATH", pathJoin(view, "bin"))
prepend_path("LD_LIBRARY_PATH", pathJoin(view, "lib"))
prepend_path("LIBRARY_PATH", pathJoin(view, "lib"))
prepend_path("CPATH", pathJoin(view, "include"))
prepend_path("PKG_CONFIG_PATH", pathJoin(view, "lib/pkgconfig"))
prepend_path("CMAKE_PREFIX_PATH", view)
prepend_path("MANPATH", pathJoin(view, "share/man"))

setenv("{{.OverrideVar}}", root)
setenv("{{.VersionVar}}", "{{.Version}}")
`))

type moduleData struct {
	Product     string
	Version     string
	Platform    string
	OverrideVar string
	VersionVar  string
	DefaultRoot string
}

func renderModule(product, version, platform string) ([]byte, error) {
	data := moduleData{
		Product:     product,
		Version:     version,
		Platform:    platform,
		OverrideVar: OverrideVar(product),
		VersionVar:  envPrefix(product) + "_VERSION",
		DefaultRoot: DefaultRoot(product, version),
	}
	var b bytes.Buffer
	if err := moduleTmpl.Execute(&b, data); err != nil {
		return nil, fmt.Errorf("%w: module descriptor: %v", ErrAssemble, err)
	}
	return b.Bytes(), nil
}
