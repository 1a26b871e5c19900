package decode

// Per-version decoding tables. Each layout names the canonical field's arg
// name and its positional index in that schema generation, so a partially
// decoded log resolves through an explicit table rather than silent
// index-guessing.

type createLayout struct {
	creator field
	token   field
	name    field
	symbol  field
	supply  field
	uri     field
}

type tradeLayout struct {
	token   field
	account field
	amount  field
	cost    field
	price   field
	offers  field
	funds   field
}

type migrationLayout struct {
	token field
	fee   field
}

type stopLayout struct {
	token field
}

// absent marks a field a schema generation does not carry.
var absent = field{index: -1}

var createLayouts = map[Version]createLayout{
	V1: {
		creator: field{"creator", 0},
		token:   field{"token", 1},
		name:    field{"name", 2},
		symbol:  field{"symbol", 3},
		supply:  field{"totalSupply", 4},
		uri:     absent,
	},
	V2: {
		creator: field{"creator", 0},
		token:   field{"token", 1},
		name:    field{"name", 2},
		symbol:  field{"symbol", 3},
		supply:  field{"totalSupply", 4},
		uri:     field{"uri", 5},
	},
}

var tradeLayouts = map[Version]tradeLayout{
	V1: {
		token:   field{"token", 0},
		account: field{"account", 1},
		amount:  field{"tokenAmount", 2},
		cost:    field{"etherAmount", 3},
		price:   absent,
		offers:  absent,
		funds:   absent,
	},
	V2: {
		token:   field{"token", 0},
		account: field{"account", 1},
		price:   field{"price", 2},
		amount:  field{"amount", 3},
		cost:    field{"cost", 4},
		offers:  field{"offers", 5},
		funds:   field{"funds", 6},
	},
}

var migrationLayouts = map[Version]migrationLayout{
	V1: {
		token: field{"token", 0},
		fee:   absent,
	},
	V2: {
		token: field{"token", 0},
		fee:   field{"fee", 1},
	},
}

var stopLayouts = map[Version]stopLayout{
	V1: {token: field{"token", 0}},
	V2: {token: field{"token", 0}},
}
