package model

import "time"

// ProcessParams is the runtime (non-persisted) classification of a task's
// target, a tagged union over three shapes. Go has no sum
// types, so the marker method closes the set to the three variants
// defined in this file, the same role as a sealed interface.
type ProcessParams interface {
	processParams()
	Site() *Site
	Date() time.Time
	Product() *Product
}

// InstrumentParams targets a Level-1b instrument product.
type InstrumentParams struct {
	SiteRef    *Site
	DateVal    time.Time
	ProductRef *Product
	Instrument *Instrument
}

func (InstrumentParams) processParams()      {}
func (p InstrumentParams) Site() *Site       { return p.SiteRef }
func (p InstrumentParams) Date() time.Time   { return p.DateVal }
func (p InstrumentParams) Product() *Product { return p.ProductRef }

// ModelParams targets a model file or an l3-* model-evaluation product.
type ModelParams struct {
	SiteRef    *Site
	DateVal    time.Time
	ProductRef *Product
	ModelID    string
}

func (ModelParams) processParams()      {}
func (p ModelParams) Site() *Site       { return p.SiteRef }
func (p ModelParams) Date() time.Time   { return p.DateVal }
func (p ModelParams) Product() *Product { return p.ProductRef }

// ProductParams targets a non-instrument, non-model product (categorize,
// classification, iwc, lwc, mwr-single, ...); Instrument is non-nil only
// when the product is tied to a specific source instrument (e.g. dvas
// follow-ups that need the instrument PID).
type ProductParams struct {
	SiteRef    *Site
	DateVal    time.Time
	ProductRef *Product
	Instrument *Instrument // optional
}

func (ProductParams) processParams()      {}
func (p ProductParams) Site() *Site       { return p.SiteRef }
func (p ProductParams) Date() time.Time   { return p.DateVal }
func (p ProductParams) Product() *Product { return p.ProductRef }
