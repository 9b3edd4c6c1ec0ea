package segtile

import "errors"

var (
	ErrGdalDriverCreate  = errors.New("gdal driver create err")
	ErrGdalDriverOpen    = errors.New("gdal driver open err")
	ErrUnsupportedVector = errors.New("unsupported vector format")
	ErrVoidSrs           = errors.New("dataset without spatial reference")
	ErrFieldMissing      = errors.New("attribute field missing")
	ErrGdalWrongGeoType  = errors.New("gdal wrong geo type")
	ErrInvalidTif        = errors.New("invalid tif")
	ErrEmptyTif          = errors.New("empty tif")
	ErrTifReadFailed     = errors.New("tif read failed")
	ErrTifWriteFailed    = errors.New("tif write failed")
	ErrWrongBufferSize   = errors.New("wrong buffer size")
	ErrUnknownEncoding   = errors.New("unknown label encoding")
)
