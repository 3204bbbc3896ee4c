package ingest

// Code lists published by the Plataforma de Contratación del Sector Público.
var (
	statusDescriptions = map[string]string{
		"PUB": "Publicada",
		"EV":  "En evaluación",
		"ADJ": "Adjudicada provisionalmente",
		"RES": "Resuelta",
		"ANU": "Anulada",
		"PRE": "Previa",
	}

	contractTypeDescriptions = map[string]string{
		"1":  "Suministros",
		"2":  "Servicios",
		"3":  "Obras",
		"21": "Gestión de Servicios Públicos",
		"31": "Concesión de Obras Públicas",
		"40": "Colaboración público-privada",
		"7":  "Administrativo especial",
		"8":  "Privado",
	}

	procedureDescriptions = map[string]string{
		"1":   "Abierto",
		"2":   "Restringido",
		"3":   "Negociado con publicidad",
		"4":   "Negociado sin publicidad",
		"5":   "Diálogo competitivo",
		"6":   "Asociación para la innovación",
		"100": "Basado en Acuerdo Marco",
		"999": "Otros",
	}
)

const (
	defaultStatusCode       = "PUB"
	defaultContractTypeCode = "2"
	defaultFolderCode       = "N/A"
	defaultTitle            = "Sin título"
	unknownDescription      = "Desconocido"
	otherProcedure          = "Otro"
	unnamedAuthority        = "Desconocido"
)

func describe(table map[string]string, code, fallback string) string {
	if d, ok := table[code]; ok {
		return d
	}
	return fallback
}

// StatusDescription returns the human label of a folder status code.
func StatusDescription(code string) string {
	return describe(statusDescriptions, code, unknownDescription)
}

// ContractTypeDescription returns the human label of a contract type code.
func ContractTypeDescription(code string) string {
	return describe(contractTypeDescriptions, code, unknownDescription)
}

// ProcedureDescription returns the human label of a procedure code.
func ProcedureDescription(code string) string {
	return describe(procedureDescriptions, code, otherProcedure)
}
