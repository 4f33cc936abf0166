package model

// Validate enforces the intent invariant before authorization: selects
// carry a statement, mutations carry exactly one of statement or
// procedure. An intent with neither is rejected here, before any
// policy evaluation or store access.
func (in *Intent) Validate() error {
	if !in.Operation.Valid() {
		return Validationf("unsupported operation %q", string(in.Operation))
	}
	if in.Operation == OpSelect {
		if in.Statement == "" {
			return Validationf("select intent has no statement")
		}
		if in.Procedure != "" {
			return Validationf("select intent must not name a procedure")
		}
		return nil
	}
	if in.Statement == "" && in.Procedure == "" {
		return Validationf("%s intent has neither statement nor procedure", in.Operation)
	}
	if in.Statement != "" && in.Procedure != "" {
		return Validationf("%s intent has both statement and procedure", in.Operation)
	}
	return nil
}
