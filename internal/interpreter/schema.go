package interpreter

// MasterDecisionSchema is the JSON Schema the master transducer is asked to
// follow. It is embedded in the system prompt; responses that stray from it
// are rejected by the strict decoder.
const MasterDecisionSchema = `{
  "type": "object",
  "required": ["intencion"],
  "properties": {
    "intencion": {
      "type": "string",
      "enum": ["saludo", "ayuda", "consulta_directa", "generar_constancia", "transformar_pdf", "continuacion", "no_reconocido"]
    },
    "entidades": {
      "type": "object",
      "properties": {
        "nombre": {"type": "string"},
        "curp": {"type": "string"},
        "grado": {"type": "integer", "minimum": 1, "maximum": 6},
        "grupo": {"type": "string"},
        "turno": {"type": "string", "enum": ["MATUTINO", "VESPERTINO"]},
        "ciclo_escolar": {"type": "string"},
        "tipo_constancia": {"type": "string", "enum": ["estudios", "calificaciones", "traslado"]},
        "foto": {"type": "string", "enum": ["si", "no", "auto"]},
        "ordinal": {"type": "integer", "minimum": 1},
        "pronombre": {"type": "boolean"},
        "confirmacion": {"type": "boolean"},
        "conteo": {"type": "boolean"},
        "agrupar_por": {"type": "string", "enum": ["grado", "grupo", "turno", "ciclo_escolar"]},
        "detalles": {"type": "boolean"}
      }
    },
    "razonamiento": {"type": "string"}
  }
}`

// StudentPlanSchema is the schema for the second stage, used when the
// master produced a query intent without enough entities to plan from.
const StudentPlanSchema = `{
  "type": "object",
  "required": ["accion"],
  "properties": {
    "accion": {
      "type": "string",
      "enum": ["buscar_alumnos", "contar_alumnos", "detalles_alumno"]
    },
    "criterios": {
      "type": "object",
      "properties": {
        "nombre": {"type": "string"},
        "curp": {"type": "string"},
        "grado": {"type": "integer"},
        "grupo": {"type": "string"},
        "turno": {"type": "string"},
        "ciclo_escolar": {"type": "string"}
      }
    },
    "agrupar_por": {"type": "string", "enum": ["grado", "grupo", "turno", "ciclo_escolar"]}
  }
}`
