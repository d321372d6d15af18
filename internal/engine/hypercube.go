package engine

import "strconv"

// Wire structs for the engine's generic-object definitions. Field names
// follow the documented qHyperCubeDef / qListObjectDef JSON exactly; only
// the subset this client sends is modelled.

// HypercubeRequest describes one server-side hypercube computation.
type HypercubeRequest struct {
	Dimensions []string // field names
	Measures   []string // expressions evaluated server-side
	MaxRows    int
}

// Validate enforces the request invariants before any network call.
func (r HypercubeRequest) Validate() error {
	if r.MaxRows <= 0 {
		return errf(KindValidation, "hypercube: max rows must be positive, got %d", r.MaxRows)
	}
	if len(r.Dimensions) == 0 && len(r.Measures) == 0 {
		return errf(KindValidation, "hypercube: at least one dimension or measure required")
	}
	return nil
}

// Width is the column count of the resulting matrix.
func (r HypercubeRequest) Width() int { return len(r.Dimensions) + len(r.Measures) }

// HypercubeResult is the normalized outcome of a hypercube computation.
// Rows are in server order; each row has one Cell per column.
type HypercubeResult struct {
	Columns   []string
	Rows      [][]Cell
	TotalRows int
	TotalCols int
}

// ---- generic object definitions -------------------------------------------

type objectInfo struct {
	ID   string `json:"qId,omitempty"`
	Type string `json:"qType"`
}

type sortCriteria struct {
	SortByState     int       `json:"qSortByState"`
	SortByFrequency int       `json:"qSortByFrequency"`
	SortByNumeric   int       `json:"qSortByNumeric"`
	SortByAscii     int       `json:"qSortByAscii"`
	SortByLoadOrder int       `json:"qSortByLoadOrder"`
	SortByExpr      int       `json:"qSortByExpression"`
	Expression      valueExpr `json:"qExpression"`
}

type valueExpr struct {
	V string `json:"qv"`
}

type dimensionDef struct {
	FieldDefs     []string       `json:"qFieldDefs"`
	FieldLabels   []string       `json:"qFieldLabels,omitempty"`
	SortCriterias []sortCriteria `json:"qSortCriterias"`
}

type hypercubeDimension struct {
	Def              dimensionDef `json:"qDef"`
	NullSuppression  bool         `json:"qNullSuppression"`
	IncludeElemValue bool         `json:"qIncludeElemValue"`
}

type measureDef struct {
	Def   string `json:"qDef"`
	Label string `json:"qLabel,omitempty"`
}

type measureSort struct {
	SortByNumeric   int `json:"qSortByNumeric"`
	SortByLoadOrder int `json:"qSortByLoadOrder"`
}

type hypercubeMeasure struct {
	Def    measureDef  `json:"qDef"`
	SortBy measureSort `json:"qSortBy"`
}

type dataFetch struct {
	Top    int `json:"qTop"`
	Left   int `json:"qLeft"`
	Height int `json:"qHeight"`
	Width  int `json:"qWidth"`
}

type hypercubeDef struct {
	Dimensions       []hypercubeDimension `json:"qDimensions"`
	Measures         []hypercubeMeasure   `json:"qMeasures"`
	InitialDataFetch []dataFetch          `json:"qInitialDataFetch"`
	SuppressZero     bool                 `json:"qSuppressZero"`
	SuppressMissing  bool                 `json:"qSuppressMissing"`
	Mode             string               `json:"qMode,omitempty"`
}

type hypercubeObjectDef struct {
	Info         objectInfo   `json:"qInfo"`
	HyperCubeDef hypercubeDef `json:"qHyperCubeDef"`
}

type listObjectDef struct {
	StateName        string       `json:"qStateName"`
	LibraryID        string       `json:"qLibraryId"`
	Def              dimensionDef `json:"qDef"`
	FrequencyMode    string       `json:"qFrequencyMode,omitempty"`
	InitialDataFetch []dataFetch  `json:"qInitialDataFetch"`
}

type listObjectObjectDef struct {
	Info          objectInfo    `json:"qInfo"`
	ListObjectDef listObjectDef `json:"qListObjectDef"`
}

// newCubeDef builds the session-object definition for a hypercube over the
// given dimension field definitions and measure expressions. initialHeight
// bounds the first data page; the caller paginates past it.
func newCubeDef(id string, dims, measures []string, initialHeight int) hypercubeObjectDef {
	def := hypercubeDef{
		Dimensions: make([]hypercubeDimension, 0, len(dims)),
		Measures:   make([]hypercubeMeasure, 0, len(measures)),
		InitialDataFetch: []dataFetch{{
			Top: 0, Left: 0, Height: initialHeight, Width: len(dims) + len(measures),
		}},
		Mode: "S",
	}
	for _, d := range dims {
		def.Dimensions = append(def.Dimensions, hypercubeDimension{
			Def: dimensionDef{
				FieldDefs: []string{d},
				SortCriterias: []sortCriteria{{
					SortByNumeric: 1, SortByAscii: 1, SortByLoadOrder: 1,
				}},
			},
			IncludeElemValue: true,
		})
	}
	for i, m := range measures {
		def.Measures = append(def.Measures, hypercubeMeasure{
			Def:    measureDef{Def: m, Label: measureLabel(i)},
			SortBy: measureSort{SortByNumeric: -1},
		})
	}
	return hypercubeObjectDef{
		Info:         objectInfo{ID: id, Type: "HyperCube"},
		HyperCubeDef: def,
	}
}

func measureLabel(i int) string {
	return "Measure_" + strconv.Itoa(i)
}
