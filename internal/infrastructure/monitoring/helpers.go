package monitoring

// ResultOK labels successful operations; failures use their error code.
const ResultOK = "ok"

// Result returns ResultOK for a nil error, else code(err).
func Result(err error, code func(error) string) string {
	if err == nil {
		return ResultOK
	}
	return code(err)
}
