package stdfv4

import "fmt"

// RecordType is the (REC_TYP, REC_SUB) pair that tags every STDF record.
type RecordType struct {
	Typ uint8
	Sub uint8
}

// The STDF V4 record kinds this package models. GDR (50, 10) is
// deliberately absent: its payload is a self-typed generic data list
// that nothing downstream consumes, so it surfaces as an Opaque record.
var (
	TypeFAR = RecordType{0, 10}
	TypeATR = RecordType{0, 20}
	TypeMIR = RecordType{1, 10}
	TypeMRR = RecordType{1, 20}
	TypePCR = RecordType{1, 30}
	TypeHBR = RecordType{1, 40}
	TypeSBR = RecordType{1, 50}
	TypeSDR = RecordType{1, 80}
	TypeWIR = RecordType{2, 10}
	TypeWRR = RecordType{2, 20}
	TypeWCR = RecordType{2, 30}
	TypePIR = RecordType{5, 10}
	TypePRR = RecordType{5, 20}
	TypeTSR = RecordType{10, 30}
	TypePTR = RecordType{15, 10}
	TypeMPR = RecordType{15, 15}
	TypeFTR = RecordType{15, 20}
	TypeBPS = RecordType{20, 10}
	TypeEPS = RecordType{20, 20}
	TypeDTR = RecordType{50, 30}
)

var recordTypeNames = map[RecordType]string{
	TypeFAR: "FAR", TypeATR: "ATR", TypeMIR: "MIR", TypeMRR: "MRR",
	TypePCR: "PCR", TypeHBR: "HBR", TypeSBR: "SBR", TypeSDR: "SDR",
	TypeWIR: "WIR", TypeWRR: "WRR", TypeWCR: "WCR", TypePIR: "PIR",
	TypePRR: "PRR", TypeTSR: "TSR", TypePTR: "PTR", TypeMPR: "MPR",
	TypeFTR: "FTR", TypeBPS: "BPS", TypeEPS: "EPS", TypeDTR: "DTR",
}

func (t RecordType) String() string {
	if name, ok := recordTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("(%d,%d)", t.Typ, t.Sub)
}

// Record is one decoded STDF record. The concrete type is one of the
// structs below, or Opaque for unmodeled (REC_TYP, REC_SUB) pairs.
//
// Field layouts are declared with `stdf:"NAME,KIND"` struct tags in the
// exact order the format prescribes; the decoder and encoder both walk
// that static schema. Pointer-typed fields form the optional tail of a
// record: a payload may legally end at any of them, and a nil pointer
// means the field was absent on the wire (never a default value).
// Array fields carry a `count=FIELD` reference to the earlier field
// holding their element count.
type Record interface {
	RecordType() RecordType
}

// Opaque holds a record whose (REC_TYP, REC_SUB) pair has no schema
// table entry. Retaining the raw payload keeps re-encoding lossless.
type Opaque struct {
	Typ     uint8
	Sub     uint8
	Payload []byte
}

func (o *Opaque) RecordType() RecordType { return RecordType{o.Typ, o.Sub} }

// FAR is the File Attributes Record: the first record of every file,
// fixing the byte order and format version.
type FAR struct {
	CPUType uint8 `stdf:"CPU_TYPE,U1"`
	StdfVer uint8 `stdf:"STDF_VER,U1"`
}

func (*FAR) RecordType() RecordType { return TypeFAR }

// ATR is an Audit Trail Record: one filtering/modification pass note.
type ATR struct {
	ModTim  uint32  `stdf:"MOD_TIM,U4"`
	CmdLine *string `stdf:"CMD_LINE,Cn"`
}

func (*ATR) RecordType() RecordType { return TypeATR }

// MIR is the Master Information Record: lot, program and tester
// identity for the whole run.
type MIR struct {
	SetupT   uint32  `stdf:"SETUP_T,U4"`
	StartT   uint32  `stdf:"START_T,U4"`
	StatNum  uint8   `stdf:"STAT_NUM,U1"`
	ModeCod  string  `stdf:"MODE_COD,C1"`
	RtstCod  string  `stdf:"RTST_COD,C1"`
	ProtCod  string  `stdf:"PROT_COD,C1"`
	BurnTim  uint16  `stdf:"BURN_TIM,U2"`
	CmodCod  string  `stdf:"CMOD_COD,C1"`
	LotID    string  `stdf:"LOT_ID,Cn"`
	PartTyp  string  `stdf:"PART_TYP,Cn"`
	NodeNam  string  `stdf:"NODE_NAM,Cn"`
	TstrTyp  string  `stdf:"TSTR_TYP,Cn"`
	JobNam   string  `stdf:"JOB_NAM,Cn"`
	JobRev   *string `stdf:"JOB_REV,Cn"`
	SblotID  *string `stdf:"SBLOT_ID,Cn"`
	OperNam  *string `stdf:"OPER_NAM,Cn"`
	ExecTyp  *string `stdf:"EXEC_TYP,Cn"`
	ExecVer  *string `stdf:"EXEC_VER,Cn"`
	TestCod  *string `stdf:"TEST_COD,Cn"`
	TstTemp  *string `stdf:"TST_TEMP,Cn"`
	UserTxt  *string `stdf:"USER_TXT,Cn"`
	AuxFile  *string `stdf:"AUX_FILE,Cn"`
	PkgTyp   *string `stdf:"PKG_TYP,Cn"`
	FamlyID  *string `stdf:"FAMLY_ID,Cn"`
	DateCod  *string `stdf:"DATE_COD,Cn"`
	FacilID  *string `stdf:"FACIL_ID,Cn"`
	FloorID  *string `stdf:"FLOOR_ID,Cn"`
	ProcID   *string `stdf:"PROC_ID,Cn"`
	OperFrq  *string `stdf:"OPER_FRQ,Cn"`
	SpecNam  *string `stdf:"SPEC_NAM,Cn"`
	SpecVer  *string `stdf:"SPEC_VER,Cn"`
	FlowID   *string `stdf:"FLOW_ID,Cn"`
	SetupID  *string `stdf:"SETUP_ID,Cn"`
	DsgnRev  *string `stdf:"DSGN_REV,Cn"`
	EngID    *string `stdf:"ENG_ID,Cn"`
	RomCod   *string `stdf:"ROM_COD,Cn"`
	SerlNum  *string `stdf:"SERL_NUM,Cn"`
	SuprNam  *string `stdf:"SUPR_NAM,Cn"`
}

func (*MIR) RecordType() RecordType { return TypeMIR }

// MRR is the Master Results Record: the last record of a run.
type MRR struct {
	FinishT uint32  `stdf:"FINISH_T,U4"`
	DispCod *string `stdf:"DISP_COD,C1"`
	UsrDesc *string `stdf:"USR_DESC,Cn"`
	ExcDesc *string `stdf:"EXC_DESC,Cn"`
}

func (*MRR) RecordType() RecordType { return TypeMRR }

// PCR is a Part Count Record.
type PCR struct {
	HeadNum uint8   `stdf:"HEAD_NUM,U1"`
	SiteNum uint8   `stdf:"SITE_NUM,U1"`
	PartCnt uint32  `stdf:"PART_CNT,U4"`
	RtstCnt *uint32 `stdf:"RTST_CNT,U4"`
	AbrtCnt *uint32 `stdf:"ABRT_CNT,U4"`
	GoodCnt *uint32 `stdf:"GOOD_CNT,U4"`
	FuncCnt *uint32 `stdf:"FUNC_CNT,U4"`
}

func (*PCR) RecordType() RecordType { return TypePCR }

// HBR is a Hardware Bin Record: the name and disposition of one hard bin.
type HBR struct {
	HeadNum uint8   `stdf:"HEAD_NUM,U1"`
	SiteNum uint8   `stdf:"SITE_NUM,U1"`
	HbinNum uint16  `stdf:"HBIN_NUM,U2"`
	HbinCnt uint32  `stdf:"HBIN_CNT,U4"`
	HbinPF  *string `stdf:"HBIN_PF,C1"`
	HbinNam *string `stdf:"HBIN_NAM,Cn"`
}

func (*HBR) RecordType() RecordType { return TypeHBR }

// SBR is a Software Bin Record: the name and disposition of one soft bin.
type SBR struct {
	HeadNum uint8   `stdf:"HEAD_NUM,U1"`
	SiteNum uint8   `stdf:"SITE_NUM,U1"`
	SbinNum uint16  `stdf:"SBIN_NUM,U2"`
	SbinCnt uint32  `stdf:"SBIN_CNT,U4"`
	SbinPF  *string `stdf:"SBIN_PF,C1"`
	SbinNam *string `stdf:"SBIN_NAM,Cn"`
}

func (*SBR) RecordType() RecordType { return TypeSBR }

// SDR is a Site Description Record.
type SDR struct {
	HeadNum uint8   `stdf:"HEAD_NUM,U1"`
	SiteGrp uint8   `stdf:"SITE_GRP,U1"`
	SiteCnt uint8   `stdf:"SITE_CNT,U1"`
	SiteNum []uint8 `stdf:"SITE_NUM,kxU1,count=SITE_CNT"`
	HandTyp *string `stdf:"HAND_TYP,Cn"`
	HandID  *string `stdf:"HAND_ID,Cn"`
	CardTyp *string `stdf:"CARD_TYP,Cn"`
	CardID  *string `stdf:"CARD_ID,Cn"`
	LoadTyp *string `stdf:"LOAD_TYP,Cn"`
	LoadID  *string `stdf:"LOAD_ID,Cn"`
	DibTyp  *string `stdf:"DIB_TYP,Cn"`
	DibID   *string `stdf:"DIB_ID,Cn"`
	CablTyp *string `stdf:"CABL_TYP,Cn"`
	CablID  *string `stdf:"CABL_ID,Cn"`
	ContTyp *string `stdf:"CONT_TYP,Cn"`
	ContID  *string `stdf:"CONT_ID,Cn"`
	LasrTyp *string `stdf:"LASR_TYP,Cn"`
	LasrID  *string `stdf:"LASR_ID,Cn"`
	ExtrTyp *string `stdf:"EXTR_TYP,Cn"`
	ExtrID  *string `stdf:"EXTR_ID,Cn"`
}

func (*SDR) RecordType() RecordType { return TypeSDR }

// WIR is a Wafer Information Record: start of one wafer's parts.
type WIR struct {
	HeadNum uint8   `stdf:"HEAD_NUM,U1"`
	SiteGrp uint8   `stdf:"SITE_GRP,U1"`
	StartT  uint32  `stdf:"START_T,U4"`
	WaferID *string `stdf:"WAFER_ID,Cn"`
}

func (*WIR) RecordType() RecordType { return TypeWIR }

// WRR is a Wafer Results Record.
type WRR struct {
	HeadNum uint8   `stdf:"HEAD_NUM,U1"`
	SiteGrp uint8   `stdf:"SITE_GRP,U1"`
	FinishT uint32  `stdf:"FINISH_T,U4"`
	PartCnt uint32  `stdf:"PART_CNT,U4"`
	RtstCnt *uint32 `stdf:"RTST_CNT,U4"`
	AbrtCnt *uint32 `stdf:"ABRT_CNT,U4"`
	GoodCnt *uint32 `stdf:"GOOD_CNT,U4"`
	FuncCnt *uint32 `stdf:"FUNC_CNT,U4"`
	WaferID *string `stdf:"WAFER_ID,Cn"`
	FabwfID *string `stdf:"FABWF_ID,Cn"`
	FrameID *string `stdf:"FRAME_ID,Cn"`
	MaskID  *string `stdf:"MASK_ID,Cn"`
	UsrDesc *string `stdf:"USR_DESC,Cn"`
	ExcDesc *string `stdf:"EXC_DESC,Cn"`
}

func (*WRR) RecordType() RecordType { return TypeWRR }

// WCR is a Wafer Configuration Record: wafer geometry.
type WCR struct {
	WafrSiz *float32 `stdf:"WAFR_SIZ,R4"`
	DieHt   *float32 `stdf:"DIE_HT,R4"`
	DieWid  *float32 `stdf:"DIE_WID,R4"`
	WfUnits *uint8   `stdf:"WF_UNITS,U1"`
	WfFlat  *string  `stdf:"WF_FLAT,C1"`
	CenterX *int16   `stdf:"CENTER_X,I2"`
	CenterY *int16   `stdf:"CENTER_Y,I2"`
	PosX    *string  `stdf:"POS_X,C1"`
	PosY    *string  `stdf:"POS_Y,C1"`
}

func (*WCR) RecordType() RecordType { return TypeWCR }

// PIR is a Part Information Record: opens one tested part on a
// (head, site) position.
type PIR struct {
	HeadNum uint8 `stdf:"HEAD_NUM,U1"`
	SiteNum uint8 `stdf:"SITE_NUM,U1"`
}

func (*PIR) RecordType() RecordType { return TypePIR }

// PRR is a Part Results Record: closes the part opened by the matching
// PIR on the same (head, site).
type PRR struct {
	HeadNum uint8   `stdf:"HEAD_NUM,U1"`
	SiteNum uint8   `stdf:"SITE_NUM,U1"`
	PartFlg uint8   `stdf:"PART_FLG,B1"`
	NumTest uint16  `stdf:"NUM_TEST,U2"`
	HardBin uint16  `stdf:"HARD_BIN,U2"`
	SoftBin *uint16 `stdf:"SOFT_BIN,U2"`
	XCoord  *int16  `stdf:"X_COORD,I2"`
	YCoord  *int16  `stdf:"Y_COORD,I2"`
	TestT   *uint32 `stdf:"TEST_T,U4"`
	PartID  *string `stdf:"PART_ID,Cn"`
	PartTxt *string `stdf:"PART_TXT,Cn"`
	PartFix []byte  `stdf:"PART_FIX,Bn"`
}

func (*PRR) RecordType() RecordType { return TypePRR }

// TSR is a Test Synopsis Record: per-test execution statistics.
type TSR struct {
	HeadNum uint8    `stdf:"HEAD_NUM,U1"`
	SiteNum uint8    `stdf:"SITE_NUM,U1"`
	TestTyp string   `stdf:"TEST_TYP,C1"`
	TestNum uint32   `stdf:"TEST_NUM,U4"`
	ExecCnt *uint32  `stdf:"EXEC_CNT,U4"`
	FailCnt *uint32  `stdf:"FAIL_CNT,U4"`
	AlrmCnt *uint32  `stdf:"ALRM_CNT,U4"`
	TestNam *string  `stdf:"TEST_NAM,Cn"`
	SeqName *string  `stdf:"SEQ_NAME,Cn"`
	TestLbl *string  `stdf:"TEST_LBL,Cn"`
	OptFlag *uint8   `stdf:"OPT_FLAG,B1"`
	TestTim *float32 `stdf:"TEST_TIM,R4"`
	TestMin *float32 `stdf:"TEST_MIN,R4"`
	TestMax *float32 `stdf:"TEST_MAX,R4"`
	TstSums *float32 `stdf:"TST_SUMS,R4"`
	TstSqrs *float32 `stdf:"TST_SQRS,R4"`
}

func (*TSR) RecordType() RecordType { return TypeTSR }

// PTR is a Parametric Test Record: one numeric measurement of one test
// on the part currently open on (HEAD_NUM, SITE_NUM).
type PTR struct {
	TestNum uint32   `stdf:"TEST_NUM,U4"`
	HeadNum uint8    `stdf:"HEAD_NUM,U1"`
	SiteNum uint8    `stdf:"SITE_NUM,U1"`
	TestFlg uint8    `stdf:"TEST_FLG,B1"`
	ParmFlg uint8    `stdf:"PARM_FLG,B1"`
	Result  float32  `stdf:"RESULT,R4"`
	TestTxt *string  `stdf:"TEST_TXT,Cn"`
	AlarmID *string  `stdf:"ALARM_ID,Cn"`
	OptFlag *uint8   `stdf:"OPT_FLAG,B1"`
	ResScal *int8    `stdf:"RES_SCAL,I1"`
	LlmScal *int8    `stdf:"LLM_SCAL,I1"`
	HlmScal *int8    `stdf:"HLM_SCAL,I1"`
	LoLimit *float32 `stdf:"LO_LIMIT,R4"`
	HiLimit *float32 `stdf:"HI_LIMIT,R4"`
	Units   *string  `stdf:"UNITS,Cn"`
	CResFmt *string  `stdf:"C_RESFMT,Cn"`
	CLlmFmt *string  `stdf:"C_LLMFMT,Cn"`
	CHlmFmt *string  `stdf:"C_HLMFMT,Cn"`
	LoSpec  *float32 `stdf:"LO_SPEC,R4"`
	HiSpec  *float32 `stdf:"HI_SPEC,R4"`
}

func (*PTR) RecordType() RecordType { return TypePTR }

// MPR is a Multiple-Result Parametric Record: one test returning a
// vector of measurements across tester pins.
type MPR struct {
	TestNum uint32    `stdf:"TEST_NUM,U4"`
	HeadNum uint8     `stdf:"HEAD_NUM,U1"`
	SiteNum uint8     `stdf:"SITE_NUM,U1"`
	TestFlg uint8     `stdf:"TEST_FLG,B1"`
	ParmFlg uint8     `stdf:"PARM_FLG,B1"`
	RtnIcnt uint16    `stdf:"RTN_ICNT,U2"`
	RsltCnt uint16    `stdf:"RSLT_CNT,U2"`
	RtnStat []uint8   `stdf:"RTN_STAT,kxN1,count=RTN_ICNT"`
	RtnRslt []float32 `stdf:"RTN_RSLT,kxR4,count=RSLT_CNT"`
	TestTxt *string   `stdf:"TEST_TXT,Cn"`
	AlarmID *string   `stdf:"ALARM_ID,Cn"`
	OptFlag *uint8    `stdf:"OPT_FLAG,B1"`
	ResScal *int8     `stdf:"RES_SCAL,I1"`
	LlmScal *int8     `stdf:"LLM_SCAL,I1"`
	HlmScal *int8     `stdf:"HLM_SCAL,I1"`
	LoLimit *float32  `stdf:"LO_LIMIT,R4"`
	HiLimit *float32  `stdf:"HI_LIMIT,R4"`
	StartIn *float32  `stdf:"START_IN,R4"`
	IncrIn  *float32  `stdf:"INCR_IN,R4"`
	RtnIndx []uint16  `stdf:"RTN_INDX,kxU2,count=RTN_ICNT"`
	Units   *string   `stdf:"UNITS,Cn"`
	UnitsIn *string   `stdf:"UNITS_IN,Cn"`
	CResFmt *string   `stdf:"C_RESFMT,Cn"`
	CLlmFmt *string   `stdf:"C_LLMFMT,Cn"`
	CHlmFmt *string   `stdf:"C_HLMFMT,Cn"`
	LoSpec  *float32  `stdf:"LO_SPEC,R4"`
	HiSpec  *float32  `stdf:"HI_SPEC,R4"`
}

func (*MPR) RecordType() RecordType { return TypeMPR }

// FTR is a Functional Test Record.
type FTR struct {
	TestNum uint32    `stdf:"TEST_NUM,U4"`
	HeadNum uint8     `stdf:"HEAD_NUM,U1"`
	SiteNum uint8     `stdf:"SITE_NUM,U1"`
	TestFlg uint8     `stdf:"TEST_FLG,B1"`
	OptFlag *uint8    `stdf:"OPT_FLAG,B1"`
	CyclCnt *uint32   `stdf:"CYCL_CNT,U4"`
	RelVadr *uint32   `stdf:"REL_VADR,U4"`
	ReptCnt *uint32   `stdf:"REPT_CNT,U4"`
	NumFail *uint32   `stdf:"NUM_FAIL,U4"`
	XfailAd *int32    `stdf:"XFAIL_AD,I4"`
	YfailAd *int32    `stdf:"YFAIL_AD,I4"`
	VectOff *int16    `stdf:"VECT_OFF,I2"`
	RtnIcnt *uint16   `stdf:"RTN_ICNT,U2"`
	PgmIcnt *uint16   `stdf:"PGM_ICNT,U2"`
	RtnIndx []uint16  `stdf:"RTN_INDX,kxU2,count=RTN_ICNT"`
	RtnStat []uint8   `stdf:"RTN_STAT,kxN1,count=RTN_ICNT"`
	PgmIndx []uint16  `stdf:"PGM_INDX,kxU2,count=PGM_ICNT"`
	PgmStat []uint8   `stdf:"PGM_STAT,kxN1,count=PGM_ICNT"`
	FailPin *BitField `stdf:"FAIL_PIN,Dn"`
	VectNam *string   `stdf:"VECT_NAM,Cn"`
	TimeSet *string   `stdf:"TIME_SET,Cn"`
	OpCode  *string   `stdf:"OP_CODE,Cn"`
	TestTxt *string   `stdf:"TEST_TXT,Cn"`
	AlarmID *string   `stdf:"ALARM_ID,Cn"`
	ProgTxt *string   `stdf:"PROG_TXT,Cn"`
	RsltTxt *string   `stdf:"RSLT_TXT,Cn"`
	PatgNum *uint8    `stdf:"PATG_NUM,U1"`
	SpinMap *BitField `stdf:"SPIN_MAP,Dn"`
}

func (*FTR) RecordType() RecordType { return TypeFTR }

// BPS is a Begin Program Section Record.
type BPS struct {
	SeqName *string `stdf:"SEQ_NAME,Cn"`
}

func (*BPS) RecordType() RecordType { return TypeBPS }

// EPS is an End Program Section Record. It has no fields.
type EPS struct{}

func (*EPS) RecordType() RecordType { return TypeEPS }

// DTR is a Datalog Text Record.
type DTR struct {
	TextDat string `stdf:"TEXT_DAT,Cn"`
}

func (*DTR) RecordType() RecordType { return TypeDTR }

// recordFactories is the static schema table: one entry per modeled
// (REC_TYP, REC_SUB) pair. Adding a record kind means adding a struct
// above and one entry here.
var recordFactories = map[RecordType]func() Record{
	TypeFAR: func() Record { return new(FAR) },
	TypeATR: func() Record { return new(ATR) },
	TypeMIR: func() Record { return new(MIR) },
	TypeMRR: func() Record { return new(MRR) },
	TypePCR: func() Record { return new(PCR) },
	TypeHBR: func() Record { return new(HBR) },
	TypeSBR: func() Record { return new(SBR) },
	TypeSDR: func() Record { return new(SDR) },
	TypeWIR: func() Record { return new(WIR) },
	TypeWRR: func() Record { return new(WRR) },
	TypeWCR: func() Record { return new(WCR) },
	TypePIR: func() Record { return new(PIR) },
	TypePRR: func() Record { return new(PRR) },
	TypeTSR: func() Record { return new(TSR) },
	TypePTR: func() Record { return new(PTR) },
	TypeMPR: func() Record { return new(MPR) },
	TypeFTR: func() Record { return new(FTR) },
	TypeBPS: func() Record { return new(BPS) },
	TypeEPS: func() Record { return new(EPS) },
	TypeDTR: func() Record { return new(DTR) },
}

// NewRecord returns a zero value of the record kind registered for t,
// or false if t has no schema table entry.
func NewRecord(t RecordType) (Record, bool) {
	factory, ok := recordFactories[t]
	if !ok {
		return nil, false
	}
	return factory(), true
}
