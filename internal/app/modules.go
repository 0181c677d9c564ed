package app

import (
	"github.com/vk/dataprep/internal/registry"
	"github.com/vk/dataprep/modules/physicalfield"
	"github.com/vk/dataprep/modules/timecomponents"
)

// coreModules is the definitive list of all derived-variable modules that
// are compiled into the dataprep binary.
var coreModules = []registry.Module{
	&timecomponents.Module{},
	&physicalfield.Module{},
}
