package app

import (
	"github.com/specialistvlad/datasetgo/internal/registry"
	"github.com/specialistvlad/datasetgo/transforms/csvtable"
	"github.com/specialistvlad/datasetgo/transforms/jsonfile"
	"github.com/specialistvlad/datasetgo/transforms/textfile"
)

// coreModules is the definitive list of all transform modules that are
// compiled into the datasetgo binary.
var coreModules = []registry.Module{
	&csvtable.Module{},
	&jsonfile.Module{},
	&textfile.Module{},
}
