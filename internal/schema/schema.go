// Package schema holds the HCL block structures of a dataset build file, as
// decoded by gohcl. The hcl package translates them into the config model.
package schema

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// --- Top level ---

// File represents the top-level structure of one build file. A build may
// be split over several files; only one of them may carry the output block.
type File struct {
	SchemaVersion  string    `hcl:"schema_version,optional"`
	DatasetVersion string    `hcl:"dataset_version,optional"`
	Extra          cty.Value `hcl:"extra,optional"`
	Output         *Output   `hcl:"output,block"`
	Inputs         []*Input  `hcl:"input,block"`
	Remain         hcl.Body  `hcl:",remain"`
}

// --- Output ---

// Output represents the `output` block.
type Output struct {
	Variables   []*OutputVariable `hcl:"variable,block"`
	CoordRanges []*CoordRange     `hcl:"coord_range,block"`
	Chunking    map[string]int    `hcl:"chunking,optional"`
	Splitting   *Splitting        `hcl:"splitting,block"`
}

// OutputVariable represents a `variable "<name>"` block inside `output`.
type OutputVariable struct {
	Name string   `hcl:"name,label"`
	Dims []string `hcl:"dims"`
}

// CoordRange represents a `coord_range "<dim>"` block.
type CoordRange struct {
	Dim   string    `hcl:"dim,label"`
	Start cty.Value `hcl:"start"`
	End   cty.Value `hcl:"end"`
	Step  cty.Value `hcl:"step,optional"`
}

// Splitting represents the `splitting` block.
type Splitting struct {
	Dim    string   `hcl:"dim"`
	Splits []*Split `hcl:"split,block"`
}

// Split represents a `split "<name>"` block.
type Split struct {
	Name       string      `hcl:"name,label"`
	Start      cty.Value   `hcl:"start"`
	End        cty.Value   `hcl:"end"`
	Statistics *Statistics `hcl:"compute_statistics,block"`
}

// Statistics represents a `compute_statistics` block.
type Statistics struct {
	Ops  []string `hcl:"ops"`
	Dims []string `hcl:"dims"`
}

// --- Inputs ---

// Input represents an `input "<name>"` block.
type Input struct {
	Name                 string             `hcl:"name,label"`
	Path                 string             `hcl:"path"`
	Dims                 []string           `hcl:"dims"`
	TargetOutputVariable string             `hcl:"target_output_variable"`
	Attributes           map[string]string  `hcl:"attributes,optional"`
	Variables            []*Variable        `hcl:"variable,block"`
	DerivedVariables     []*DerivedVariable `hcl:"derived_variable,block"`
	DimMappings          []*DimMapping      `hcl:"dim_mapping,block"`
}

// Variable represents a `variable "<name>"` block inside an input.
type Variable struct {
	Name       string       `hcl:"name,label"`
	Units      string       `hcl:"units,optional"`
	Selections []*Selection `hcl:"select,block"`
}

// Selection represents a `select "<dim>"` block. Either values or
// start/end is given.
type Selection struct {
	Dim    string    `hcl:"dim,label"`
	Values cty.Value `hcl:"values,optional"`
	Start  cty.Value `hcl:"start,optional"`
	End    cty.Value `hcl:"end,optional"`
	Step   cty.Value `hcl:"step,optional"`
	Units  string    `hcl:"units,optional"`
}

// DerivedVariable represents a `derived_variable "<name>"` block.
type DerivedVariable struct {
	Name     string            `hcl:"name,label"`
	Function string            `hcl:"function"`
	Kwargs   cty.Value         `hcl:"kwargs,optional"`
	Attrs    map[string]string `hcl:"attrs,optional"`
}

// DimMapping represents a `dim_mapping "<output dim>"` block.
type DimMapping struct {
	OutputDim  string   `hcl:"output_dim,label"`
	Method     string   `hcl:"method"`
	Dim        string   `hcl:"dim,optional"`
	Dims       []string `hcl:"dims,optional"`
	NameFormat string   `hcl:"name_format,optional"`
}
