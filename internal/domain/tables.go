package domain

var Tables = []interface{}{
	// System
	&SysOpr{},
	&SysOprLog{},
	// Catalog
	&Product{},
	// Fulfillment
	&Order{},
	&DanaSlip{},
	&ShapeSlip{},
	&DispatchSlip{},
	&PackagingSlip{},
	&WorkflowRun{},
}
