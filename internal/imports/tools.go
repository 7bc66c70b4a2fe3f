package imports

import (
	// Document tools register themselves with the registry on import
	_ "github.com/quillhaven/docsmith/internal/tools/convert"
	_ "github.com/quillhaven/docsmith/internal/tools/docsearch"
	_ "github.com/quillhaven/docsmith/internal/tools/extract"
	_ "github.com/quillhaven/docsmith/internal/tools/generate"
	_ "github.com/quillhaven/docsmith/internal/tools/restructure"
	_ "github.com/quillhaven/docsmith/internal/tools/template"
)
